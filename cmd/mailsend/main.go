// Command mailsend composes one message from its flags and sends it through
// the configured delivery adapter. The exit status is 0 when the adapter
// accepted the message, 1 when it did not and 2 on usage errors.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/shineum/mailkit/adapter"
	"github.com/shineum/mailkit/email"
	"github.com/shineum/mailkit/internal/backend"
	"github.com/shineum/mailkit/internal/config"
	"github.com/shineum/mailkit/internal/logging"
	"github.com/shineum/mailkit/mailer"
)

// adapterFactory builds the adapter a run sends through.
type adapterFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (adapter.Adapter, error)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stderr, backend.New)
	cancel()
	os.Exit(code)
}

// stringList is a repeatable string flag.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

type options struct {
	configPath string
	envFile    string
	adapter    string

	from     string
	fromName string
	to       stringList
	cc       stringList
	bcc      stringList
	subject  string
	body     string
	bodyFile string
	html     bool
	attach   stringList
	embed    stringList
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	o := &options{}
	fs := flag.NewFlagSet("mailsend", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&o.configPath, "config", "", "path to YAML configuration file (optional)")
	fs.StringVar(&o.envFile, "env-file", ".env", "path to a .env file (optional)")
	fs.StringVar(&o.adapter, "adapter", "", "adapter to use, overriding configuration")

	fs.StringVar(&o.from, "from", "", "sender address, optionally \"Name <addr>\"")
	fs.StringVar(&o.fromName, "from-name", "", "sender display name")
	fs.Var(&o.to, "to", "To recipient (repeatable)")
	fs.Var(&o.cc, "cc", "Cc recipient (repeatable)")
	fs.Var(&o.bcc, "bcc", "Bcc recipient (repeatable)")
	fs.StringVar(&o.subject, "subject", "", "subject line")
	fs.StringVar(&o.body, "body", "", "message body")
	fs.StringVar(&o.bodyFile, "body-file", "", "read the body from a file, or - for stdin")
	fs.BoolVar(&o.html, "html", false, "send the body as HTML")
	fs.Var(&o.attach, "attach", "file to attach (repeatable)")
	fs.Var(&o.embed, "embed", "file to embed inline (repeatable)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if len(o.to) == 0 {
		return nil, errors.New("at least one -to recipient is required")
	}
	if o.body != "" && o.bodyFile != "" {
		return nil, errors.New("-body and -body-file are mutually exclusive")
	}
	return o, nil
}

// message composes the message described by o. stdin backs -body-file -.
func (o *options) message(stdin io.Reader) (*email.Message, error) {
	body := o.body
	switch o.bodyFile {
	case "":
	case "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read body from stdin: %w", err)
		}
		body = string(data)
	default:
		data, err := os.ReadFile(o.bodyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read body file: %w", err)
		}
		body = string(data)
	}

	b := email.NewBuilder().Subject(o.subject)
	if o.html {
		b.HTML(body)
	} else {
		b.Text(body)
	}
	if o.from != "" {
		b.From(email.Address(o.from), o.fromName)
	}
	for _, r := range o.to {
		b.To(email.Address(r))
	}
	for _, r := range o.cc {
		b.CC(email.Address(r))
	}
	for _, r := range o.bcc {
		b.BCC(email.Address(r))
	}

	var files []*os.File
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()
	open := func(path string) (email.Stream, string, error) {
		f, err := os.Open(path)
		if err != nil {
			return email.Stream{}, "", fmt.Errorf("failed to open attachment: %w", err)
		}
		files = append(files, f)
		return email.Stream{Reader: f}, filepath.Base(path), nil
	}
	for _, path := range o.attach {
		s, name, err := open(path)
		if err != nil {
			return nil, err
		}
		b.Attach(s, name)
	}
	for _, path := range o.embed {
		s, name, err := open(path)
		if err != nil {
			return nil, err
		}
		b.Embed(s, name)
	}

	return b.Build()
}

func run(ctx context.Context, args []string, stdin io.Reader, stderr io.Writer, newAdapter adapterFactory) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, "mailsend:", err)
		return 2
	}

	if err := config.LoadEnvFile(o.envFile); err != nil {
		fmt.Fprintln(stderr, "mailsend:", err)
		return 1
	}
	cfg, err := loadConfig(o.configPath)
	if err != nil {
		fmt.Fprintln(stderr, "mailsend:", err)
		return 1
	}
	if o.adapter != "" {
		cfg.Adapter = strings.ToLower(o.adapter)
	}

	logger := logging.Setup(stderr, cfg.Logging.Level)

	msg, err := o.message(stdin)
	if err != nil {
		logger.Error("failed to compose message", "error", err)
		return 2
	}

	a, err := newAdapter(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create adapter", "error", err)
		return 1
	}

	if !mailer.New(a).Send(ctx, msg) {
		logger.Error("message was not accepted", "adapter", a.Name())
		return 1
	}
	logger.Info("message sent",
		"adapter", a.Name(),
		"subject", msg.Subject(),
		"to", adapter.Join(msg.RecipientsFor(email.To)),
		"attachments", len(msg.Attachments()),
	)
	return 0
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}
