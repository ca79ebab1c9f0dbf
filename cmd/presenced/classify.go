package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/normanking/cortexpresence/internal/channels"
	"github.com/normanking/cortexpresence/internal/classify"
	"github.com/normanking/cortexpresence/internal/emotion"
	"github.com/normanking/cortexpresence/internal/policy"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type userReport struct {
	Input    string                        `yaml:"input"`
	Result   classify.ClassificationResult `yaml:"result"`
	Reaction policy.Reaction               `yaml:"reaction"`
}

type responseReport struct {
	Input      string                `yaml:"input"`
	Emotion    emotion.AgentEmotion  `yaml:"emotion"`
	Cue        string                `yaml:"cue"`
	Haptic     emotion.HapticPattern `yaml:"haptic"`
	Transition string                `yaml:"transition"`
}

func newClassifyCmd() *cobra.Command {
	var response bool

	cmd := &cobra.Command{
		Use:   "classify [text]",
		Short: "Classify a piece of text",
		Long: `Classify user input and print the empathic reaction, or with --response
classify an agent reply and print the emotion the avatar shows for it.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if response {
				e := classify.ResponseEmotion(text)
				return writeYAML(cmd.OutOrStdout(), responseReport{
					Input:      text,
					Emotion:    e,
					Cue:        channels.Cue(e),
					Haptic:     emotion.HapticFor(e),
					Transition: emotion.DefaultTransitionDurations()[e].String(),
				})
			}

			res := classify.UserEmotion(text)
			return writeYAML(cmd.OutOrStdout(), userReport{
				Input:    text,
				Result:   res,
				Reaction: policy.Lookup(res.Emotion),
			})
		},
	}
	cmd.Flags().BoolVarP(&response, "response", "r", false, "classify an agent response instead of user input")
	return cmd
}

func newFlowCmd() *cobra.Command {
	var typing string
	var at string

	cmd := &cobra.Command{
		Use:   "flow [messages.yaml]",
		Short: "Analyze conversation flow from a YAML message log",
		Long: `Read a YAML list of messages (sender, content, timestamp) and print the
derived momentum, intent, anticipation and tone. Use "-" to read stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("read messages: %w", err)
			}

			var messages []classify.Message
			if err := yaml.Unmarshal(data, &messages); err != nil {
				return fmt.Errorf("decode messages: %w", err)
			}

			now := time.Now()
			if at != "" {
				if now, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
			}
			return writeYAML(cmd.OutOrStdout(), classify.Flow(messages, typing, now))
		},
	}
	cmd.Flags().StringVar(&typing, "typing", "", "text currently being composed")
	cmd.Flags().StringVar(&at, "at", "", "evaluation time in RFC3339 (default now)")
	return cmd
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
