package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tgspider/internal/pkg/logtag"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect and crawl every configured channel until interrupted",
	RunE:  runRun,
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Alias for run: the scheduler always resumes from each channel's saved checkpoint",
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Println(logtag.Info + " shutdown requested, finishing in-flight downloads...")
		cancel()
	}()

	b, err := setup(ctx)
	if err != nil {
		return err
	}
	defer b.close()

	eng := newEngine(b)
	if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}

	log.Println(logtag.OK + " stopped.")
	return nil
}
