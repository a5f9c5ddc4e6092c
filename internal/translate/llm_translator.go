package translate

import (
	"context"

	"github.com/spherical/bill-assistant/internal/domain"
)

const (
	// SimplifySystemPrompt asks for a translation a 12-year-old can follow.
	SimplifySystemPrompt = "你是一位语言助手，能将德文官文翻译成简体中文，并用简单、易懂的语言解释，适合12岁儿童理解。"
	simplifyUserPrefix   = "请将以下德文翻译并解释为简体中文：\n"
)

// LLMTranslator translates and simplifies text with a chat-completion model.
type LLMTranslator struct {
	chat  domain.ChatCompleter
	model string
}

// NewLLMTranslator creates a translator on top of chat. model is only used for naming.
func NewLLMTranslator(chat domain.ChatCompleter, model string) *LLMTranslator {
	return &LLMTranslator{chat: chat, model: model}
}

// Name implements domain.Translator.
func (t *LLMTranslator) Name() string {
	return "llm:" + t.model
}

// Translate implements domain.Translator.
func (t *LLMTranslator) Translate(ctx context.Context, chunk string) (string, error) {
	reply, err := t.chat.Complete(ctx, []domain.Message{
		{Role: domain.RoleSystem, Content: SimplifySystemPrompt},
		{Role: domain.RoleUser, Content: simplifyUserPrefix + chunk},
	})
	if err != nil {
		return "", domain.TranslationError("chat translation failed", err)
	}
	return reply, nil
}
