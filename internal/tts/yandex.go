package tts

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"

	ytts "github.com/yandex-cloud/go-genproto/yandex/cloud/ai/tts/v3"

	"github.com/normanking/cortexlipsync/internal/audio"
	"github.com/normanking/cortexlipsync/internal/config"
)

const (
	YandexTTSEndpoint = "tts.api.cloud.yandex.net:443"
)

// YandexProvider streams SpeechKit v3 utterance synthesis over gRPC.
type YandexProvider struct {
	logger zerolog.Logger
	config config.YandexConfig

	mu     sync.Mutex
	conn   *grpc.ClientConn
	client ytts.SynthesizerClient
}

// NewYandexProvider creates the provider. The connection is opened on first use.
func NewYandexProvider(logger zerolog.Logger, cfg config.YandexConfig) *YandexProvider {
	if cfg.Endpoint == "" {
		cfg.Endpoint = YandexTTSEndpoint
	}
	if cfg.Voice == "" {
		cfg.Voice = "alena"
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1.0
	}

	return &YandexProvider{
		logger: logger.With().Str("provider", "yandex-tts").Logger(),
		config: cfg,
	}
}

func (p *YandexProvider) Name() string {
	return "yandex"
}

func (p *YandexProvider) IsAvailable() bool {
	return p.config.APIKey != "" && p.config.FolderID != ""
}

func (p *YandexProvider) synthesizer() (ytts.SynthesizerClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}

	creds := credentials.NewTLS(&tls.Config{})
	conn, err := grpc.NewClient(p.config.Endpoint, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to TTS service: %w", err)
	}

	p.conn = conn
	p.client = ytts.NewSynthesizerClient(conn)
	return p.client, nil
}

func (p *YandexProvider) Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error) {
	if !p.IsAvailable() {
		return nil, fmt.Errorf("yandex: %w: API key or folder not set", ErrProviderUnavailable)
	}

	client, err := p.synthesizer()
	if err != nil {
		return nil, err
	}

	startTime := time.Now()

	ctx = metadata.AppendToOutgoingContext(ctx,
		"authorization", "Api-Key "+p.config.APIKey,
		"x-folder-id", p.config.FolderID,
	)

	stream, err := client.UtteranceSynthesis(ctx, p.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to start synthesis: %w", err)
	}

	var buf bytes.Buffer
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to receive audio data: %w", err)
		}
		if chunk := resp.GetAudioChunk(); chunk != nil {
			buf.Write(chunk.GetData())
		}
	}

	processingTime := time.Since(startTime)

	p.logger.Info().
		Str("voice", p.voice(req)).
		Str("language", req.Language).
		Int("audioBytes", buf.Len()).
		Dur("processingTime", processingTime).
		Msg("Yandex TTS synthesis complete")

	return &SynthesizeResponse{
		Audio:          buf.Bytes(),
		Format:         audio.FormatWAV,
		SampleRate:     22050,
		ProcessingTime: processingTime,
		VoiceID:        p.voice(req),
		Provider:       p.Name(),
	}, nil
}

func (p *YandexProvider) voice(req *SynthesizeRequest) string {
	if req.VoiceID != "" {
		return req.VoiceID
	}
	return p.config.Voice
}

func (p *YandexProvider) buildRequest(req *SynthesizeRequest) *ytts.UtteranceSynthesisRequest {
	out := &ytts.UtteranceSynthesisRequest{}
	out.SetText(req.Text)

	speed := p.config.Speed
	if req.Speed > 0 {
		speed = req.Speed
	}

	voiceHint := &ytts.Hints{}
	voiceHint.SetVoice(p.voice(req))

	speedHint := &ytts.Hints{}
	speedHint.SetSpeed(speed)

	out.SetHints([]*ytts.Hints{voiceHint, speedHint})

	containerAudio := &ytts.ContainerAudio{}
	containerAudio.SetContainerAudioType(ytts.ContainerAudio_WAV)

	audioSpec := &ytts.AudioFormatOptions{}
	audioSpec.SetContainerAudio(containerAudio)
	out.SetOutputAudioSpec(audioSpec)

	out.SetLoudnessNormalizationType(ytts.UtteranceSynthesisRequest_LUFS)
	return out
}

func (p *YandexProvider) Health(ctx context.Context) error {
	if !p.IsAvailable() {
		return ErrProviderUnavailable
	}
	return nil
}

// Close releases the gRPC connection.
func (p *YandexProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	p.client = nil
	return err
}
