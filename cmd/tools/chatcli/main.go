package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/assessli/carebot/backend/internal/app"
	"github.com/assessli/carebot/backend/internal/audio"
	"github.com/assessli/carebot/backend/internal/config"
	"github.com/assessli/carebot/backend/internal/model/profile"
	"github.com/assessli/carebot/backend/internal/model/turn"
	"github.com/assessli/carebot/backend/internal/observability"
	"github.com/assessli/carebot/backend/internal/service/orchestrator"
)

func main() {
	userID := pflag.StringP("user", "u", "", "用户 ID（同时作为会话线程 ID）")
	name := pflag.String("name", "", "新建档案时使用的姓名")
	age := pflag.Int("age", -1, "新建档案时使用的年龄")
	envFile := pflag.String("env", ".env", "环境变量文件路径")
	verbose := pflag.BoolP("verbose", "v", false, "打印状态变化")
	pflag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", *envFile, err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置加载失败: %v\n", err)
		os.Exit(1)
	}
	observability.Configure(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化失败: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	in := bufio.NewReader(os.Stdin)
	s := &session{
		app:     application,
		in:      in,
		out:     os.Stdout,
		verbose: *verbose,
	}
	if err := s.ensureProfile(ctx, *userID, *name, *age); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if err := s.loop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

type session struct {
	app     *app.App
	in      *bufio.Reader
	out     io.Writer
	userID  string
	verbose bool
}

func (s *session) prompt(label string) (string, error) {
	fmt.Fprint(s.out, label)
	line, err := s.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// ensureProfile 缺失的参数从标准输入补齐；档案不存在时创建
func (s *session) ensureProfile(ctx context.Context, userID, name string, age int) error {
	var err error
	if userID == "" {
		if userID, err = s.prompt("Enter your user ID: "); err != nil {
			return err
		}
	}
	if userID == "" {
		return errors.New("user ID is required")
	}
	s.userID = userID

	p, ok, err := s.app.Profiles.Get(ctx, userID)
	if err != nil {
		return err
	}
	if ok {
		fmt.Fprintf(s.out, "Welcome back, %s.\n", p.Name)
		return nil
	}

	fmt.Fprintln(s.out, "New user, let's create your profile.")
	if name == "" {
		if name, err = s.prompt("Enter your name: "); err != nil {
			return err
		}
	}
	if age < 0 {
		raw, err := s.prompt("Enter your age: ")
		if err != nil {
			return err
		}
		if age, err = strconv.Atoi(raw); err != nil || age < 0 {
			return fmt.Errorf("invalid age %q", raw)
		}
	}
	if _, err := s.app.Profiles.Create(ctx, userID, name, age); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Profile created for %s.\n", name)
	return nil
}

type command struct {
	verb string
	arg  string
}

func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if strings.EqualFold(line, "END") {
		return command{verb: "end"}, nil
	}
	verb, arg, _ := strings.Cut(line, " ")
	verb = strings.ToLower(verb)
	arg = strings.TrimSpace(arg)
	switch verb {
	case "text":
		if arg == "" {
			return command{}, errors.New("usage: text <message>")
		}
	case "wav":
		if arg == "" {
			return command{}, errors.New("usage: wav <path>")
		}
	case "profile":
	default:
		return command{}, fmt.Errorf("unknown command %q, use 'text <message>', 'wav <path>', 'profile' or 'END'", verb)
	}
	return command{verb: verb, arg: arg}, nil
}

func (s *session) loop(ctx context.Context) error {
	for {
		line, err := s.prompt("\nYou (type 'text <message>', 'wav <path>' or 'END'): ")
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if line == "" {
			continue
		}

		cmd, err := parseCommand(line)
		if err != nil {
			fmt.Fprintln(s.out, err)
			continue
		}

		switch cmd.verb {
		case "end":
			fmt.Fprintln(s.out, "Goodbye.")
			return nil
		case "profile":
			s.printProfile(ctx)
		case "text":
			s.run(ctx, turn.NewText(s.userID, cmd.arg))
		case "wav":
			req, err := loadWAV(s.userID, cmd.arg)
			if err != nil {
				fmt.Fprintln(s.out, err)
				continue
			}
			s.run(ctx, req)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func loadWAV(userID, path string) (turn.Request, error) {
	f, err := os.Open(path)
	if err != nil {
		return turn.Request{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	samples, err := audio.DecodeWAV(f)
	if err != nil {
		return turn.Request{}, fmt.Errorf("decode wav: %w", err)
	}
	return turn.NewAudio(userID, samples, audio.RequiredSampleRate), nil
}

func (s *session) run(ctx context.Context, req turn.Request) {
	var observers []orchestrator.Observer
	if s.verbose {
		observers = append(observers, orchestrator.ObserverFunc(func(_ context.Context, _ string, _, to turn.State) {
			fmt.Fprintf(s.out, "  [%s]\n", to)
		}))
	}

	resp, err := s.app.Pipeline.Handle(ctx, req, observers...)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	if resp.Transcript != "" {
		fmt.Fprintf(s.out, "Transcript: %s\n", resp.Transcript)
	}
	fmt.Fprintf(s.out, "Emotion: %s (valence %.2f)", resp.EmotionLabel, resp.Valence)
	if resp.Arousal != nil {
		fmt.Fprintf(s.out, ", arousal %.3f", *resp.Arousal)
	}
	fmt.Fprintln(s.out)
	fmt.Fprintf(s.out, "Bot: %s\n", resp.Reply)
}

func (s *session) printProfile(ctx context.Context) {
	p, ok, err := s.app.Profiles.Get(ctx, s.userID)
	if err != nil || !ok {
		fmt.Fprintln(s.out, "profile not found")
		return
	}
	fmt.Fprint(s.out, profile.Summary(p))
}
