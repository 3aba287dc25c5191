package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/objectionlab/voicecall/backend/internal/config"
	"github.com/objectionlab/voicecall/backend/internal/logging"
	speechmodel "github.com/objectionlab/voicecall/backend/internal/model/speech"
	"github.com/objectionlab/voicecall/backend/internal/service/speech"
)

func main() {
	mode := flag.String("mode", "", "测试模式: asr 或 tts")
	audioPath := flag.String("audio", "", "ASR 输入音频文件路径")
	text := flag.String("text", "", "TTS 输入文本")
	outputPath := flag.String("out", "", "TTS 输出音频文件路径 (默认根据格式自动生成)")
	format := flag.String("format", "", "音频格式 (ASR: 输入格式; TTS: 输出格式)")
	language := flag.String("lang", "", "语言代码，默认使用配置中的语言")
	voice := flag.String("voice", "", "TTS 声音 ID，默认使用配置中的音色")
	session := flag.String("session", "", "自定义 sessionID，留空则自动生成")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")
	verbose := flag.Bool("v", false, "输出 debug 日志")
	flag.Parse()

	level := "info"
	if *verbose {
		level = "debug"
	}
	logger := logging.New(level, "console")

	if err := godotenv.Load(); err != nil {
		logger.Warn().Err(err).Msg("无法加载 .env，改用系统环境变量")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("配置加载失败")
	}

	if *mode != "asr" && *mode != "tts" {
		flag.Usage()
		logger.Fatal().Msg("请通过 -mode=asr 或 -mode=tts 指定测试模式")
	}

	sessionID := *session
	if sessionID == "" {
		sessionID = fmt.Sprintf("manual-%d", time.Now().UnixNano())
	}

	svc := speech.NewFromConfig(cfg.Speech, logger)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *mode {
	case "asr":
		err = runASR(ctx, svc, logger, sessionID, *audioPath, *format, *language)
	case "tts":
		err = runTTS(ctx, svc, logger, sessionID, *text, *voice, *format, *language, *outputPath)
	}
	if err != nil {
		logger.Fatal().Err(err).Str("mode", *mode).Msg("调用失败")
	}
}

func runASR(ctx context.Context, svc *speech.Service, logger zerolog.Logger, sessionID, audioPath, format, language string) error {
	if audioPath == "" {
		return fmt.Errorf("ASR 模式需要通过 -audio 指定音频文件路径")
	}

	data, err := os.ReadFile(audioPath)
	if err != nil {
		return fmt.Errorf("读取音频文件失败: %w", err)
	}

	if format == "" {
		format = filepath.Ext(audioPath)
	}
	format = speech.NormalizeAudioFormat(format)

	logger.Info().Str("session", sessionID).Str("format", format).Int("bytes", len(data)).Msg("开始进行 ASR 测试")

	start := time.Now()
	resp, err := svc.Transcribe(ctx, speechmodel.AudioInput{
		SessionID: sessionID,
		Data:      data,
		Format:    format,
		Language:  language,
	})
	if err != nil {
		return err
	}

	logger.Info().
		Str("text", resp.Text).
		Str("language", resp.Language).
		Float64("audioSeconds", resp.Duration).
		Dur("took", time.Since(start)).
		Msg("ASR 识别成功")
	return nil
}

func runTTS(ctx context.Context, svc *speech.Service, logger zerolog.Logger, sessionID, text, voice, format, language, outputPath string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("TTS 模式需要通过 -text 提供待合成文本")
	}

	logger.Info().Str("session", sessionID).Str("voice", voice).Str("format", format).Msg("开始进行 TTS 测试")

	start := time.Now()
	resp, err := svc.Synthesize(ctx, speechmodel.SynthesisInput{
		SessionID: sessionID,
		Text:      text,
		Voice:     voice,
		Format:    format,
		Language:  language,
	})
	if err != nil {
		return err
	}

	if outputPath == "" {
		outputPath = fmt.Sprintf("tts-output-%d.%s", time.Now().Unix(), resp.Format)
	}
	if err := os.WriteFile(outputPath, resp.Data, 0o644); err != nil {
		return fmt.Errorf("写入音频文件失败: %w", err)
	}

	logger.Info().
		Str("out", outputPath).
		Int("bytes", len(resp.Data)).
		Int64("durationMs", resp.Duration).
		Dur("took", time.Since(start)).
		Msg("TTS 合成成功")
	return nil
}
