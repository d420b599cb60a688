// Package app wires configuration into a ready-to-serve handler.
package app

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"

	"pipedrive-agent/handler"
	"pipedrive-agent/internal/config"
	"pipedrive-agent/internal/crm"
	"pipedrive-agent/internal/format"
	"pipedrive-agent/internal/integrations/openai"
	"pipedrive-agent/internal/integrations/paramstore"
	"pipedrive-agent/internal/repository"
	"pipedrive-agent/internal/session"
	"pipedrive-agent/internal/usecase"
)

const (
	crmTokenParam        = "pipedrive-token"
	chatTokenParam       = "open-ai-token"
	transcribeTokenParam = "transcribe-token"

	staticPrefix = "/local"
)

// Build assembles the assistant and its HTTP handler. Secrets come from SSM
// unless every key is present in cfg.
func Build(cfg *config.Config, awsCfg aws.Config, sessions handler.SessionProvider, logger *zap.Logger) (*handler.Handler, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if cfg.StateTable == "" {
		return nil, errors.New("app: STATE_TABLE is required")
	}

	getter, prefix, err := secrets(cfg, awsCfg, logger)
	if err != nil {
		return nil, err
	}

	crmClient, err := crm.NewClient(getter, prefix,
		crm.WithBaseURL(cfg.CRM.BaseURL),
		crm.WithRateLimit(cfg.CRM.RateLimit, cfg.CRM.Burst),
	)
	if err != nil {
		return nil, fmt.Errorf("app: crm client: %w", err)
	}

	chatClient, err := openai.NewClient(getter, prefix, llmOptions(cfg.Chat, chatTokenParam)...)
	if err != nil {
		return nil, fmt.Errorf("app: chat client: %w", err)
	}
	speechClient, err := openai.NewClient(getter, prefix, llmOptions(cfg.Transcribe, transcribeTokenParam)...)
	if err != nil {
		return nil, fmt.Errorf("app: transcription client: %w", err)
	}

	generator, err := usecase.NewLLMCommandGenerator(chatClient, cfg.Chat.Model)
	if err != nil {
		return nil, err
	}
	rewriter, err := usecase.NewLLMRewriter(chatClient, cfg.Chat.Model)
	if err != nil {
		return nil, err
	}
	transcriber, err := usecase.NewSpeechTranscriber(speechClient, cfg.Transcribe.Model)
	if err != nil {
		return nil, err
	}

	transcripts, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable)
	if err != nil {
		return nil, fmt.Errorf("app: transcript store: %w", err)
	}

	assistant, err := usecase.NewAssistant(crmClient, generator, transcriber, session.NewStore(), transcripts,
		usecase.WithLogger(logger),
		usecase.WithRewriter(rewriter),
		usecase.WithTranscriptLimit(cfg.TranscriptLimit),
		usecase.WithFormatter(format.New(
			format.WithDateLayout(cfg.Format.DateLayout),
			format.WithLocation(cfg.Location()),
		)),
	)
	if err != nil {
		return nil, err
	}

	return handler.NewHandler(assistant, sessions, logger)
}

func secrets(cfg *config.Config, awsCfg aws.Config, logger *zap.Logger) (paramstore.Getter, string, error) {
	if cfg.StaticSecrets() {
		logger.Info("using API credentials from the environment")
		prefix := cfg.ParamPrefix
		if prefix == "" {
			prefix = staticPrefix
		}
		return paramstore.Static{
			prefix + "/" + crmTokenParam:        paramstore.StaticToken(cfg.CRM.APIToken),
			prefix + "/" + chatTokenParam:       paramstore.StaticToken(cfg.Chat.APIKey),
			prefix + "/" + transcribeTokenParam: paramstore.StaticToken(cfg.Transcribe.APIKey),
		}, prefix, nil
	}

	ps, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, "", fmt.Errorf("app: parameter store: %w", err)
	}
	return ps, cfg.ParamPrefix, nil
}

func llmOptions(c config.LLMConfig, tokenParam string) []openai.Option {
	opts := []openai.Option{
		openai.WithBaseURL(c.BaseURL),
		openai.WithAPIVersion(c.APIVersion),
		openai.WithTokenParameter(tokenParam),
	}
	if c.Azure {
		opts = append(opts, openai.WithAzureAuth())
	}
	return opts
}
