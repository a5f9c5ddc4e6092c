package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spherical/bill-assistant/cmd/bill-assistant/ui"
	"github.com/spherical/bill-assistant/internal/domain"
	"github.com/spherical/bill-assistant/pkg/assistant"
)

var chatCmd = &cobra.Command{
	Use:   "chat <pdf>",
	Short: "Translate a bill and ask questions about it interactively",
	Long: `chat extracts and translates the bill, then reads questions from the terminal.

Commands:
  /history  show the conversation so far
  /reset    start a new conversation about the same bill
  /quit     leave`,
	Args: cobra.ExactArgs(1),
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

// chatClient is the part of the client the chat loop needs.
type chatClient interface {
	NewSession(ctx context.Context) (string, error)
	LoadPDF(ctx context.Context, sessionID, path string) (assistant.ExtractedDocument, error)
	Translate(ctx context.Context, sessionID string, eventCh chan<- assistant.StreamEvent) (assistant.DocumentContext, error)
	Ask(ctx context.Context, sessionID, question string) (assistant.Answer, error)
	History(ctx context.Context, sessionID string) ([]assistant.Turn, error)
	Reset(ctx context.Context, sessionID string) ([]assistant.Turn, error)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := newInteractiveClient()
	if err != nil {
		return err
	}
	defer client.Close()

	return chatSession(ctx, client, args[0], ui.NewPrompter(os.Stdin, ui.Out), true)
}

// chatSession loads and translates path, then answers questions until
// /quit, end of input or cancellation.
func chatSession(ctx context.Context, client chatClient, path string, prompter *ui.Prompter, showProgress bool) error {
	id, err := client.NewSession(ctx)
	if err != nil {
		return err
	}

	ui.Step("正在读取 %s", path)
	doc, err := client.LoadPDF(ctx, id, path)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	ui.Info("%s：%d 页", doc.Name, len(doc.Pages))

	if err := translateWithProgress(ctx, client, id, showProgress); err != nil {
		return fmt.Errorf("translate: %w", err)
	}
	ui.Success("翻译完成，可以提问了（/history 查看记录，/reset 重新开始，/quit 退出）")

	for {
		line, err := prompter.Prompt("\n你有什么问题？")
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		switch strings.ToLower(line) {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/history":
			history, err := client.History(ctx, id)
			if err != nil {
				return err
			}
			printHistory(history)
			continue
		case "/reset":
			if _, err := client.Reset(ctx, id); err != nil {
				return err
			}
			ui.Info("对话已重置，账单内容保留")
			continue
		}

		spinner := ui.NewSpinner("思考中...")
		spinner.Start()
		answer, err := client.Ask(ctx, id, line)
		spinner.Stop()

		switch {
		case err == nil:
			ui.Speaker(ui.AssistantLabel, answer.Content)
		case domain.IsType(err, domain.ErrorTypeNoContext):
			ui.Warning(domain.NoContextUserMessage)
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			ui.Error("发生错误：%v", err)
		}
	}
}

func translateWithProgress(ctx context.Context, client chatClient, id string, showProgress bool) error {
	var tracker ui.Tracker
	if showProgress {
		tracker = ui.NewChunkBar("翻译中")
	}

	events := make(chan assistant.StreamEvent, 64)
	done := ui.Follow(events, tracker)
	_, err := client.Translate(ctx, id, events)
	close(events)
	<-done

	if tracker != nil {
		tracker.Finish(err)
	}
	return err
}

// printHistory shows the conversation without the system instruction.
func printHistory(history []assistant.Turn) {
	ui.Section("聊天记录")
	for _, turn := range history {
		switch turn.Role {
		case domain.RoleSystem:
			continue
		case domain.RoleUser:
			ui.Speaker(ui.UserLabel, turn.Content)
		default:
			ui.Speaker(ui.AssistantLabel, turn.Content)
		}
	}
}
