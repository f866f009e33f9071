package protocol

import (
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// Session wires the process-level collaborators shared by both roles:
// stdin as the input source, stdout (optionally metered) as the output,
// the trace file and the status signal.
type Session struct {
	Input   Source
	Output  io.Writer
	Logger  *slog.Logger
	Options []Option

	bar       *progressbar.ProgressBar
	traceFile *os.File
	signals   chan os.Signal
}

func OpenSession(cfg Config, logger *slog.Logger) (*Session, error) {
	input, err := NewFileSource(os.Stdin)
	if err != nil {
		return nil, err
	}
	session := &Session{
		Input:  input,
		Output: os.Stdout,
		Logger: logger,
	}
	session.Options = append(session.Options, WithLogger(logger))

	if cfg.Progress {
		if term.IsTerminal(int(os.Stderr.Fd())) {
			session.bar = progressbar.NewOptions64(-1,
				progressbar.OptionSetDescription("received"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowBytes(true),
				progressbar.OptionThrottle(65*time.Millisecond),
				progressbar.OptionSpinnerType(14),
			)
			session.Output = io.MultiWriter(os.Stdout, session.bar)
		} else {
			logger.Warn("stderr is not a terminal, progress disabled")
		}
	}

	if cfg.TracePath != "" {
		f, err := os.Create(cfg.TracePath)
		if err != nil {
			return nil, errors.Wrap(err, "create trace file")
		}
		tracer, err := NewTracer(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		session.traceFile = f
		session.Options = append(session.Options, WithTracer(tracer))
		logger.Info("capturing packets", "file", cfg.TracePath)
	}

	session.signals = make(chan os.Signal, 1)
	if sigs := statusSignals(); len(sigs) > 0 {
		signal.Notify(session.signals, sigs...)
		session.Options = append(session.Options, WithStatusSignal(session.signals))
	}
	return session, nil
}

func (session *Session) Close() error {
	signal.Stop(session.signals)
	if session.bar != nil {
		session.bar.Finish()
	}
	if session.traceFile != nil {
		return session.traceFile.Close()
	}
	return nil
}
