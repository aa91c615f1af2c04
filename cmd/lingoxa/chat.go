package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/MrWong99/lingoxa/internal/app"
	"github.com/MrWong99/lingoxa/pkg/types"
)

type chatOptions struct {
	userID    string
	audioPath string
	speakPath string
	asJSON    bool
}

func chatCmd() *cobra.Command {
	var opts chatOptions
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Practise with the tutor in the terminal",
		Long: `Start a tutoring session and answer each line typed on stdin.
Type /quit or send EOF to end the session.

With --audio the recording is answered once and the command exits.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.userID, "user", "cli", "learner ID whose profile is used")
	cmd.Flags().StringVar(&opts.audioPath, "audio", "", "answer a WAV recording instead of reading stdin")
	cmd.Flags().StringVar(&opts.speakPath, "speak", "", "write the last tutor reply as WAV to this file")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print full responses as JSON")
	return cmd
}

func runChat(ctx context.Context, in io.Reader, out io.Writer, opts chatOptions) error {
	application, err := newApplication(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Shutdown(context.Background()); err != nil {
			slog.Warn("shutdown error", "err", err)
		}
	}()

	sessions := application.Sessions()
	info, err := sessions.Start(ctx, opts.userID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "session %s started at level %s\n", info.SessionID, info.Level)

	var last *types.TutorResponse
	if opts.audioPath != "" {
		recording, err := os.ReadFile(opts.audioPath)
		if err != nil {
			return fmt.Errorf("read recording: %w", err)
		}
		last, err = sessions.ProcessAudio(ctx, info.SessionID, recording)
		if err != nil {
			return err
		}
		if err := printResponse(out, last, opts.asJSON); err != nil {
			return err
		}
	} else {
		last, err = chatLoop(ctx, in, out, sessions, info.SessionID, opts.asJSON)
		if err != nil {
			return err
		}
	}

	if opts.speakPath != "" && last != nil {
		res, err := sessions.Synthesize(ctx, info.SessionID, last.ResponseEn, "")
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.speakPath, res.Audio, 0o644); err != nil {
			return fmt.Errorf("write speech: %w", err)
		}
		fmt.Fprintf(out, "reply audio written to %s\n", opts.speakPath)
	}
	return nil
}

// chatLoop answers stdin line by line and returns the last response.
// Failed turns are reported and the loop continues.
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, sessions *app.SessionManager, id string, asJSON bool) (*types.TutorResponse, error) {
	var last *types.TutorResponse
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "/quit":
			return last, nil
		case line == "":
		default:
			resp, err := sessions.ProcessText(ctx, id, line)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				break
			}
			last = resp
			if err := printResponse(out, resp, asJSON); err != nil {
				return last, err
			}
		}
		if ctx.Err() != nil {
			return last, ctx.Err()
		}
		fmt.Fprint(out, "> ")
	}
	return last, scanner.Err()
}

func printResponse(out io.Writer, resp *types.TutorResponse, asJSON bool) error {
	if asJSON {
		body, err := sonic.ConfigStd.MarshalIndent(resp, "", "  ")
		if err != nil {
			return fmt.Errorf("encode response: %w", err)
		}
		_, err = fmt.Fprintln(out, string(body))
		return err
	}

	fmt.Fprintf(out, "tutor: %s\n", resp.ResponseEn)
	if resp.ResponseVi != nil {
		fmt.Fprintf(out, "tiếng Việt: %s\n", *resp.ResponseVi)
	}
	for _, ge := range resp.Analysis.GrammarErrors {
		fmt.Fprintf(out, "  ✗ %q → %q", ge.IncorrectSpan, ge.Correction)
		if ge.Explanation != "" {
			fmt.Fprintf(out, " (%s)", ge.Explanation)
		}
		fmt.Fprintln(out)
	}
	if p := resp.Analysis.Pronunciation; p != nil {
		fmt.Fprintf(out, "  pronunciation: accuracy %.0f%%, prosody %.0f%%\n", p.Accuracy*100, p.ProsodyScore*100)
		for _, wi := range p.Errors {
			fmt.Fprintf(out, "    %s: %s\n", wi.Word, wi.Issue)
		}
	}
	fmt.Fprintf(out, "  confidence %.2f, %d ms, model %s\n", resp.Confidence, resp.LatencyMs, resp.ComponentUsage.ModelID)
	return nil
}
