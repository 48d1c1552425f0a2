// Package console implements the ambient operator-facing surface: auth
// prompts, channel/topic selection menus, and live progress bars. None of
// it is part of the crawl-and-download core; it is wired only from
// cmd/tgspider.
package console

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/manifoldco/promptui"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"tgspider/internal/domain"
)

// Console handles every terminal interaction: authentication prompts
// (implements telegram.AuthInput structurally), channel/topic pickers, and
// a domain.ProgressSink backed by live mpb bars.
type Console struct {
	nonInteractive bool

	mu   sync.Mutex
	bars map[string]*mpb.Bar
	prog *mpb.Progress
}

func New(nonInteractive bool) *Console {
	c := &Console{
		nonInteractive: nonInteractive,
		bars:           make(map[string]*mpb.Bar),
	}
	if !nonInteractive {
		c.prog = mpb.New(mpb.WithWidth(64))
	}
	return c
}

// GetPhoneNumber prompts for the account phone number in international
// format.
func (c *Console) GetPhoneNumber() (string, error) {
	prompt := promptui.Prompt{
		Label: "Enter phone number (e.g. +39...)",
		Validate: func(input string) error {
			if len(input) < 5 {
				return errors.New("phone number too short")
			}
			return nil
		},
	}
	return prompt.Run()
}

func (c *Console) GetCode() (string, error) {
	prompt := promptui.Prompt{
		Label: "Enter code",
		Validate: func(input string) error {
			if len(input) == 0 {
				return errors.New("code cannot be empty")
			}
			return nil
		},
	}
	return prompt.Run()
}

func (c *Console) GetPassword() (string, error) {
	prompt := promptui.Prompt{Label: "Enter 2FA password", Mask: '*'}
	return prompt.Run()
}

// SelectChannels prompts the operator to multi-select channels from the
// dialog list when none were configured explicitly. promptui has no
// native multi-select, so this repeats single-select-with-exit.
func (c *Console) SelectChannels(channels []domain.Channel) ([]domain.Channel, error) {
	if len(channels) == 0 {
		return nil, errors.New("no channels available")
	}

	templates := &promptui.SelectTemplates{
		Label:    "{{ . }}?",
		Active:   "\U0001F449 {{ .Title | cyan }}",
		Inactive: "  {{ .Title | white }}",
		Selected: "\U0001F44D {{ .Title | green }}",
	}

	const doneLabel = "Done selecting"
	var selected []domain.Channel
	remaining := append([]domain.Channel(nil), channels...)

	for {
		items := append([]domain.Channel{{Title: doneLabel}}, remaining...)
		prompt := promptui.Select{
			Label:     fmt.Sprintf("Select channel to crawl (%d selected)", len(selected)),
			Items:     items,
			Templates: templates,
			Size:      10,
			Searcher: func(input string, index int) bool {
				name := strings.ToLower(strings.ReplaceAll(items[index].Title, " ", ""))
				input = strings.ToLower(strings.ReplaceAll(input, " ", ""))
				return strings.Contains(name, input)
			},
		}

		i, _, err := prompt.Run()
		if err != nil {
			return selected, err
		}
		if items[i].Title == doneLabel {
			return selected, nil
		}

		selected = append(selected, items[i])
		remaining = append(remaining[:i-1:i-1], remaining[i:]...)
		if len(remaining) == 0 {
			return selected, nil
		}
	}
}

// SelectTopic prompts for one forum topic of a channel.
func (c *Console) SelectTopic(topics []domain.Topic) (domain.Topic, error) {
	if len(topics) == 0 {
		return domain.Topic{}, errors.New("no topics available")
	}

	templates := &promptui.SelectTemplates{
		Label:    "{{ . }}?",
		Active:   "\U0001F449 {{ .Title | cyan }}",
		Inactive: "  {{ .Title | white }}",
		Selected: "\U0001F44D {{ .Title | green }}",
	}

	prompt := promptui.Select{
		Label:     "Select topic",
		Items:     topics,
		Templates: templates,
		Size:      10,
		Searcher: func(input string, index int) bool {
			name := strings.ToLower(strings.ReplaceAll(topics[index].Title, " ", ""))
			input = strings.ToLower(strings.ReplaceAll(input, " ", ""))
			return strings.Contains(name, input)
		},
	}

	i, _, err := prompt.Run()
	if err != nil {
		return domain.Topic{}, err
	}
	return topics[i], nil
}

func (c *Console) PromptInt(label string) (int64, error) {
	prompt := promptui.Prompt{
		Label: label,
		Validate: func(input string) error {
			_, err := strconv.ParseInt(input, 10, 64)
			return err
		},
	}
	res, err := prompt.Run()
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(res, 10, 64)
}

// Progress implements domain.ProgressSink with one live mpb bar per
// destination file, created lazily on first report and marked complete
// once downloaded reaches total.
func (c *Console) Progress(channelID, fileName string, downloaded, total int64) {
	if c.nonInteractive {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := channelID + "/" + fileName
	bar, ok := c.bars[key]
	if !ok {
		label := fileName
		bar = c.prog.AddBar(total,
			mpb.PrependDecorators(
				decor.Name(label, decor.WC{W: len(label) + 1}),
				decor.Counters(decor.SizeB1024(0), "% .2f / % .2f", decor.WCSyncSpace),
			),
			mpb.AppendDecorators(
				decor.OnComplete(decor.Percentage(decor.WCSyncSpace), "done"),
				decor.AverageSpeed(decor.SizeB1024(0), "% .2f", decor.WCSyncSpace),
			),
		)
		c.bars[key] = bar
	}

	bar.SetCurrent(downloaded)
	if downloaded >= total {
		bar.SetTotal(-1, true)
		delete(c.bars, key)
	}
}

// Wait blocks until every active progress bar has finished rendering.
func (c *Console) Wait() {
	if c.nonInteractive || c.prog == nil {
		return
	}
	c.prog.Wait()
}
