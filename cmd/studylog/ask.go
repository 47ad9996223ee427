package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pbaille/studylog/internal/attach"
	"github.com/pbaille/studylog/internal/chat"
	"github.com/pbaille/studylog/internal/domain"
)

func askCmd() *cobra.Command {
	var (
		day   string
		image string
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question and file the answer",
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			if strings.TrimSpace(question) == "" && image == "" {
				return fmt.Errorf("a question or --image is required")
			}
			if day == "" {
				day = domain.DayOf(time.Now())
			}

			s, cfg, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			client, err := newRelay(cfg, zap.NewNop())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			req := chat.Request{Text: question}
			if image != "" {
				req.Image, err = attach.New().Load(ctx, image)
				if err != nil {
					return fmt.Errorf("load image: %w", err)
				}
			}

			ctrl := chat.New(day, client, s, chatConfig(cfg), zap.NewNop())
			printed := 0
			res, err := ctrl.Send(ctx, req, func(u chat.Update) {
				if len(u.Text) > printed {
					fmt.Print(u.Text[printed:])
					printed = len(u.Text)
				}
			})
			if printed > 0 {
				fmt.Println()
			}
			if err != nil {
				return err
			}

			if printed == 0 {
				fmt.Println(domain.Entry{Sender: domain.SenderModel, Text: res.Answer}.Display())
			}
			if res.Classified {
				fmt.Fprintf(os.Stderr, "\nFiled under %s > %s\n", res.Subject, res.Unit)
			} else {
				fmt.Fprintf(os.Stderr, "\nNo matching unit, filed under %s > %s\n", res.Subject, res.Unit)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&day, "date", "", "day transcript to append to (default today)")
	cmd.Flags().StringVar(&image, "image", "", "image file path or URL to attach")
	return cmd
}
