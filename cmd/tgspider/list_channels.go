package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var listChannelsCmd = &cobra.Command{
	Use:   "list-channels",
	Short: "List every channel the logged-in account is a member of",
	RunE:  runListChannels,
}

func runListChannels(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	b, err := setup(ctx)
	if err != nil {
		return err
	}
	defer b.close()

	out, errc := b.facade.IterDialogs(ctx)
	for ch := range out {
		forum := ""
		if ch.IsForum {
			forum = " (forum)"
		}
		fmt.Printf("%s\t%s%s\n", ch.ID, ch.Title, forum)
	}
	return <-errc
}
