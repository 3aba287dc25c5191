package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/fatih/color"
)

var (
	serverURL = flag.String("server", "http://localhost:8080", "API 服务地址")
	personaID = flag.String("persona", "", "人设 ID，留空使用服务端默认人设")
	outDir    = flag.String("out", "", "保存回复音频的目录，留空则不保存")
	timeout   = flag.Duration("timeout", 60*time.Second, "单轮请求超时时间")
	keep      = flag.Bool("keep", false, "退出时不挂断电话")
)

type startResponse struct {
	CallID      string `json:"callId"`
	PersonaID   string `json:"personaId"`
	OpeningLine string `json:"openingLine"`
}

type turnResponse struct {
	Transcript      string `json:"transcript"`
	Reply           string `json:"reply"`
	Audio           string `json:"audio"`
	AudioFormat     string `json:"audioFormat"`
	TurnCount       int    `json:"turnCount"`
	WrapUpSuggested bool   `json:"wrapUpSuggested"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type client struct {
	base string
	http *http.Client
}

// 交互式拨打一通电话：普通输入走文字轮次，以 @ 开头的输入视为音频文件路径。
func main() {
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	boldGreen := color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	c := &client{base: strings.TrimRight(*serverURL, "/"), http: &http.Client{Timeout: *timeout}}

	call, err := c.start(ctx, *personaID)
	if err != nil {
		fmt.Fprintln(os.Stderr, red("无法开始通话: "+err.Error()))
		os.Exit(1)
	}
	if !*keep {
		defer func() {
			if err := c.end(context.Background(), call.CallID); err != nil {
				fmt.Fprintln(os.Stderr, red("挂断失败: "+err.Error()))
			}
		}()
	}

	fmt.Println(boldGreen("📞 Connected"))
	fmt.Printf("Call %s with persona %s\n", boldCyan(call.CallID), boldCyan(call.PersonaID))
	if call.OpeningLine != "" {
		fmt.Println(faint("(prospect picks up) " + call.OpeningLine))
	}
	fmt.Println("Type your pitch and press Enter. Prefix a file path with @ to send audio. Type 'exit' to hang up.")
	fmt.Println()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print(boldGreen("You: "))

		var input string
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			input = strings.TrimSpace(line)
		}

		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			return
		}

		var (
			resp *turnResponse
			err  error
		)
		if path, ok := strings.CutPrefix(input, "@"); ok {
			resp, err = c.audioTurn(ctx, call.CallID, path)
			if err == nil {
				fmt.Println(faint("(heard) " + resp.Transcript))
			}
		} else {
			resp, err = c.textTurn(ctx, call.CallID, input)
		}
		if err != nil {
			fmt.Println(red("Error: " + err.Error()))
			continue
		}

		fmt.Printf("%s %s\n", boldCyan("Prospect:"), resp.Reply)
		if resp.WrapUpSuggested {
			fmt.Println(yellow(fmt.Sprintf("(%d turns so far, time to close)", resp.TurnCount)))
		}

		if *outDir != "" && resp.Audio != "" {
			path, err := saveAudio(*outDir, call.CallID, resp)
			if err != nil {
				fmt.Println(red("保存音频失败: " + err.Error()))
			} else {
				fmt.Println(faint("audio saved to " + path))
			}
		}
	}
}

func (c *client) start(ctx context.Context, persona string) (*startResponse, error) {
	var resp startResponse
	if err := c.do(ctx, http.MethodPost, "/api/calls", map[string]string{"personaId": persona}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *client) end(ctx context.Context, callID string) error {
	return c.do(ctx, http.MethodDelete, "/api/calls/"+callID, nil, nil)
}

func (c *client) textTurn(ctx context.Context, callID, text string) (*turnResponse, error) {
	var resp turnResponse
	if err := c.do(ctx, http.MethodPost, "/api/calls/"+callID+"/messages", map[string]string{"text": text}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *client) audioTurn(ctx context.Context, callID, path string) (*turnResponse, error) {
	data, err := os.ReadFile(strings.TrimSpace(path))
	if err != nil {
		return nil, fmt.Errorf("读取音频文件失败: %w", err)
	}

	body := map[string]string{
		"audio":  base64.StdEncoding.EncodeToString(data),
		"format": strings.TrimPrefix(filepath.Ext(path), "."),
	}

	var resp turnResponse
	if err := c.do(ctx, http.MethodPost, "/api/calls/"+callID+"/turns", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *client) do(ctx context.Context, method, path string, payload, out any) error {
	var reader io.Reader
	if payload != nil {
		encoded, err := sonic.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if res.StatusCode >= http.StatusBadRequest {
		var apiErr errorResponse
		if sonic.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (HTTP %d)", apiErr.Error, res.StatusCode)
		}
		return fmt.Errorf("unexpected status %d", res.StatusCode)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	return sonic.Unmarshal(raw, out)
}

func saveAudio(dir, callID string, resp *turnResponse) (string, error) {
	data, err := base64.StdEncoding.DecodeString(resp.Audio)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", errors.New("empty audio")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	format := resp.AudioFormat
	if format == "" {
		format = "mp3"
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-turn%02d.%s", callID, resp.TurnCount, format))
	return path, os.WriteFile(path, data, 0o644)
}
