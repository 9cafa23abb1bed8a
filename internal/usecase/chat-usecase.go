package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/iamvkosarev/lingro/config"
	"github.com/iamvkosarev/lingro/internal/model"
	openai_tools "github.com/iamvkosarev/lingro/pkg/openai-tools"
	"github.com/sashabaranov/go-openai"
)

const (
	OpenAIRoleUser      = "user"
	OpenAIRoleAssistant = "assistant"
)

var (
	ErrNoModelResponded = errors.New("no valid response from any model")
	ErrEmptyCompletion  = errors.New("model returned an empty completion")
)

type ChatReply struct {
	Text    string
	Model   string
	Trimmed bool
}

type ChatUsecaseDeps struct {
	Logger     *log.Logger
	HTTPClient *http.Client
}

// ChatUsecase sends a transcript to the chat proxy and walks the configured
// models in order until one of them answers.
type ChatUsecase struct {
	ChatUsecaseDeps
	cfg         config.Chat
	client      *openai.Client
	countTokens func([]openai.ChatCompletionMessage, string) (int, error)
}

func NewChatUsecase(deps ChatUsecaseDeps, cfg config.Chat) *ChatUsecase {
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard)
	}
	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	routed := *httpClient
	routed.Transport = chatRouteTransport{base: httpClient.Transport}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.ProxyURL, "/") + "/api"
	clientConfig.HTTPClient = &routed

	return &ChatUsecase{
		ChatUsecaseDeps: deps,
		cfg:             cfg,
		client:          openai.NewClientWithConfig(clientConfig),
		countTokens:     openai_tools.CountToken,
	}
}

// SendChatMessage asks for a reply to text given the prior transcript.
func (c *ChatUsecase) SendChatMessage(ctx context.Context, history []model.Message, text string) (ChatReply, error) {
	models := c.cfg.Models()
	if len(models) == 0 {
		return ChatReply{}, config.ErrNoModels
	}

	messages, trimmed := c.trimHistory(buildHistory(history, text), models[0])

	var lastErr error
	for _, m := range models {
		reply, err := c.complete(ctx, m, messages)
		if err == nil {
			return ChatReply{Text: reply, Model: m, Trimmed: trimmed}, nil
		}
		if ctx.Err() != nil {
			return ChatReply{}, ctx.Err()
		}
		c.Logger.Warn("chat model failed", "model", m, "error", err)
		lastErr = err
	}
	return ChatReply{}, fmt.Errorf("%w: %w", ErrNoModelResponded, lastErr)
}

func (c *ChatUsecase) complete(ctx context.Context, chatModel string, messages []openai.ChatCompletionMessage) (string, error) {
	resp, err := c.client.CreateChatCompletion(
		ctx, openai.ChatCompletionRequest{
			Model:       chatModel,
			Temperature: c.cfg.ModelTemperature,
			Messages:    messages,
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", ErrEmptyCompletion
	}
	return reply, nil
}

// trimHistory drops the oldest messages until the prompt fits the token
// budget. The last message, the new user text, is always kept.
func (c *ChatUsecase) trimHistory(messages []openai.ChatCompletionMessage, chatModel string) ([]openai.ChatCompletionMessage, bool) {
	if c.cfg.MaxContextTokens <= 0 {
		return messages, false
	}
	trimmed := false
	for len(messages) > 1 {
		tokenCount, err := c.countTokens(messages, chatModel)
		if err != nil {
			c.Logger.Warn("failed to count tokens, sending history as is", "error", err)
			break
		}
		if tokenCount < c.cfg.MaxContextTokens {
			break
		}
		messages = messages[1:]
		trimmed = true
	}
	if trimmed {
		c.Logger.Debug("history trimmed due to token limit", "messages", len(messages))
	}
	return messages, trimmed
}

// buildHistory maps the transcript onto chat roles. Media-only messages have
// no text for the model and are skipped.
func buildHistory(history []model.Message, text string) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	for _, message := range history {
		if message.Text == "" {
			continue
		}
		messages = append(
			messages, openai.ChatCompletionMessage{
				Role:    parseSenderToRole(message.Sender),
				Content: message.Text,
			},
		)
	}
	return append(
		messages, openai.ChatCompletionMessage{
			Role:    OpenAIRoleUser,
			Content: text,
		},
	)
}

func parseSenderToRole(sender model.Sender) string {
	if sender == model.SenderUser {
		return OpenAIRoleUser
	}
	return OpenAIRoleAssistant
}

// chatRouteTransport maps the client's /chat/completions route onto the
// proxy's /chat endpoint.
type chatRouteTransport struct {
	base http.RoundTripper
}

func (t chatRouteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	if !strings.HasSuffix(req.URL.Path, "/chat/completions") {
		return base.RoundTrip(req)
	}
	routed := req.Clone(req.Context())
	routed.URL.Path = strings.TrimSuffix(req.URL.Path, "/completions")
	routed.URL.RawPath = ""
	return base.RoundTrip(routed)
}
