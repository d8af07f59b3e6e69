package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"

	"adaptive-learning/internal/apiclient"
	"adaptive-learning/internal/config"
	"adaptive-learning/internal/domain"
	"adaptive-learning/internal/metrics"
	"adaptive-learning/internal/service"
	"adaptive-learning/internal/session"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const usage = `Usage: quizctl [-metrics] <command> [flags]

Commands:
  login    -u USER -p PASSWORD       log in and store the session
  logout                             forget the stored session
  whoami                             show the logged in user
  submit   -quiz ID -answers 1,0,2   submit a quiz attempt (add -watch to wait for feedback)
  results  [-select ID] [-wait]      list results, optionally following one result's feedback
  watch    TASK_ID                   poll a feedback task until it finishes

Global flags:
  -metrics                           print client metrics to stderr after the command
`

type cli struct {
	cfg      *config.Config
	out      io.Writer
	errOut   io.Writer
	sessions *session.Manager
	client   *apiclient.Client
	metrics  *metrics.Metrics
	registry *prometheus.Registry

	// pollOpts and viewOpts let tests shorten the poll and settle delays.
	pollOpts []service.PollerOption
	viewOpts []service.ViewOption
}

func newCLI(cfg *config.Config, store domain.Cache, out, errOut io.Writer) *cli {
	sessions := session.NewManager(store, cfg.Session.TTL)
	registry := prometheus.NewRegistry()
	return &cli{
		cfg:      cfg,
		out:      out,
		errOut:   errOut,
		sessions: sessions,
		metrics:  metrics.NewClientMetrics(registry),
		registry: registry,
		client: apiclient.New(cfg.API.BaseURL,
			apiclient.WithTokenSource(sessions),
			apiclient.WithTimeout(cfg.API.Timeout)),
	}
}

func (c *cli) run(ctx context.Context, args []string) error {
	global := flag.NewFlagSet("quizctl", flag.ContinueOnError)
	global.SetOutput(c.errOut)
	showMetrics := global.Bool("metrics", false, "print client metrics to stderr after the command")
	if err := global.Parse(args); err != nil {
		return err
	}

	err := c.dispatch(ctx, global.Args())
	if *showMetrics {
		if merr := c.printMetrics(c.errOut); merr != nil && err == nil {
			err = merr
		}
	}
	return err
}

func (c *cli) dispatch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(c.errOut, usage)
		return errors.New("no command given")
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "login":
		return c.login(ctx, rest)
	case "logout":
		return c.sessions.Logout(ctx)
	case "whoami":
		return c.whoami(ctx)
	case "submit":
		return c.submit(ctx, rest)
	case "results":
		return c.results(ctx, rest)
	case "watch":
		return c.watch(ctx, rest)
	case "help", "-h", "--help":
		fmt.Fprint(c.out, usage)
		return nil
	default:
		fmt.Fprint(c.errOut, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (c *cli) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	username := fs.String("u", "", "username")
	password := fs.String("p", os.Getenv("QUIZCTL_PASSWORD"), "password (or QUIZCTL_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || *password == "" {
		return domain.NewInvalidInputError("login needs -u and -p")
	}

	token, err := c.client.Login(ctx, *username, *password)
	if err != nil {
		return err
	}
	sess, err := c.sessions.Login(ctx, token)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Logged in as %s\n", sess.Username)
	return nil
}

func (c *cli) whoami(ctx context.Context) error {
	sess, err := c.sessions.Restore(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s (%s)\n", sess.Username, sess.UserID)
	return nil
}

func (c *cli) submit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	quizID := fs.String("quiz", "", "quiz id")
	answerList := fs.String("answers", "", "comma separated zero-based choices; leave a slot empty to skip it")
	watch := fs.Bool("watch", false, "wait for AI feedback after submitting")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *quizID == "" {
		return domain.NewInvalidInputError("submit needs -quiz")
	}

	sess, err := c.sessions.Restore(ctx)
	if err != nil {
		return err
	}
	answers, err := parseAnswers(*answerList)
	if err != nil {
		return err
	}

	submission := &domain.QuizSubmission{
		QuizID:   *quizID,
		UserID:   sess.UserID,
		Username: sess.Username,
		Answers:  answers,
	}
	submissions := service.NewSubmissionService(c.client, nil, c.metrics)
	// Skipped answers are rejected before the quiz lookup goes out.
	if err := submissions.Validate(submission, service.UnknownQuestionCount); err != nil {
		return err
	}

	expected := service.UnknownQuestionCount
	quiz, err := c.client.GetQuiz(ctx, *quizID)
	switch {
	case err == nil:
		expected = len(quiz.Questions)
	case domain.IsCode(err, domain.ErrQuizNotFound):
		return err
	default:
		fmt.Fprintf(c.errOut, "warning: could not load quiz %s, answer count not checked: %v\n", *quizID, err)
	}

	result, err := submissions.Submit(ctx, submission, expected)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Score: %.1f%% (%d/%d correct)\n", result.Score, result.CorrectCount, result.TotalQuestions)
	printWrongQuestions(c.out, result)

	if !result.HasPendingFeedback() {
		return nil
	}
	if !*watch {
		fmt.Fprintf(c.out, "AI feedback is being generated (task %s)\n", result.FeedbackTaskID)
		return nil
	}
	return c.pollAndPrint(ctx, result.FeedbackTaskID)
}

func (c *cli) watch(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return domain.NewInvalidInputError("watch needs exactly one task id")
	}
	if _, err := c.sessions.Restore(ctx); err != nil {
		return err
	}
	return c.pollAndPrint(ctx, args[0])
}

func (c *cli) pollAndPrint(ctx context.Context, taskID string) error {
	fmt.Fprintln(c.out, "Waiting for AI feedback...")
	poller := c.newPoller()
	outcome, err := poller.Poll(ctx, taskID)
	if outcome == nil {
		return err
	}
	if outcome.State == domain.FeedbackAvailable {
		fmt.Fprintf(c.out, "\nAI feedback:\n%s\n", outcome.Feedback)
		return nil
	}
	return err
}

func (c *cli) results(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("results", flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	selectID := fs.String("select", "", "result id to show in detail")
	wait := fs.Bool("wait", false, "with -select, wait until pending feedback finishes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sess, err := c.sessions.Restore(ctx)
	if err != nil {
		return err
	}

	changes := make(chan struct{}, 1)
	opts := append([]service.ViewOption{
		service.WithViewMetrics(c.metrics),
		service.WithOnChange(func() {
			select {
			case changes <- struct{}{}:
			default:
			}
		}),
	}, c.viewOpts...)
	view := service.NewResultsView(c.client, c.newPoller(), sess.Username, opts...)
	defer view.Close()

	if err := view.Load(ctx); err != nil {
		return err
	}
	printResults(c.out, view.Results())

	if *selectID == "" {
		return nil
	}
	var selected *domain.QuizResult
	for _, r := range view.Results() {
		if r.ID == *selectID {
			selected = r
			break
		}
	}
	if selected == nil {
		return domain.NewNotFoundError(fmt.Sprintf("no result with id %s", *selectID))
	}
	view.Select(selected)

	if *wait && view.FeedbackState() == domain.FeedbackPending {
		if err := c.follow(ctx, view, changes); err != nil {
			return err
		}
	}
	printDetail(c.out, view)
	return nil
}

// follow prints state transitions of the selected result until its coordinator exits.
func (c *cli) follow(ctx context.Context, view *service.ResultsView, changes <-chan struct{}) error {
	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	var once sync.Once

	g.Go(func() error {
		defer once.Do(func() { close(done) })
		return view.Wait(gctx)
	})
	g.Go(func() error {
		last := view.FeedbackState()
		fmt.Fprintf(c.out, "Feedback: %s\n", last)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-done:
				return nil
			case <-changes:
				if state := view.FeedbackState(); state != last {
					last = state
					fmt.Fprintf(c.out, "Feedback: %s\n", state)
				}
			}
		}
	})
	return g.Wait()
}

func (c *cli) newPoller() service.FeedbackPoller {
	opts := append([]service.PollerOption{service.WithPollerMetrics(c.metrics)}, c.pollOpts...)
	return service.NewFeedbackPoller(c.client, c.cfg.Poll, opts...)
}

// printMetrics writes every client sample in a name{labels} value form.
func (c *cli) printMetrics(w io.Writer) error {
	families, err := c.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			series := mf.GetName()
			if len(labels) > 0 {
				series += "{" + strings.Join(labels, ",") + "}"
			}
			switch {
			case m.GetCounter() != nil:
				fmt.Fprintf(w, "%s %g\n", series, m.GetCounter().GetValue())
			case m.GetGauge() != nil:
				fmt.Fprintf(w, "%s %g\n", series, m.GetGauge().GetValue())
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				fmt.Fprintf(w, "%s count=%d sum=%g\n", series, h.GetSampleCount(), h.GetSampleSum())
			}
		}
	}
	return nil
}

// parseAnswers turns "1,,2" into [1, nil, 2].
func parseAnswers(list string) ([]*int, error) {
	if strings.TrimSpace(list) == "" {
		return nil, domain.NewValidationError(domain.MsgIncompleteAnswers, nil)
	}
	parts := strings.Split(list, ",")
	answers := make([]*int, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, domain.NewInvalidInputError(fmt.Sprintf("answer %d (%q) is not a number", i+1, p))
		}
		answers[i] = domain.Answer(n)
	}
	return answers, nil
}

func printWrongQuestions(w io.Writer, r *domain.QuizResult) {
	for _, wq := range r.WrongQuestions {
		fmt.Fprintf(w, "  x %s\n    you answered: %s, correct: %s\n",
			wq.Question, choiceLabel(wq.Choices, wq.UserAnswer), choiceLabel(wq.Choices, wq.CorrectAnswer))
	}
}

func choiceLabel(choices []string, idx int) string {
	if idx < 0 || idx >= len(choices) {
		return "no answer"
	}
	return choices[idx]
}

func printResults(w io.Writer, results []*domain.QuizResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No quiz results yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tQUIZ\tSCORE\tCOMPLETED\tFEEDBACK")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%.1f%%\t%s\t%s\n",
			r.ID, r.QuizID, r.Score, r.CompletedAt.Local().Format("2006-01-02 15:04"), domain.DeriveFeedbackState(r))
	}
	_ = tw.Flush()
}

func printDetail(w io.Writer, view *service.ResultsView) {
	r := view.Selected()
	if r == nil {
		return
	}
	fmt.Fprintf(w, "\nResult %s: %.1f%% (%d/%d correct)\n", r.ID, r.Score, r.CorrectCount, r.TotalQuestions)
	printWrongQuestions(w, r)

	switch view.FeedbackState() {
	case domain.FeedbackAvailable:
		fmt.Fprintf(w, "\nAI feedback:\n%s\n", r.AIFeedback)
	case domain.FeedbackPending:
		fmt.Fprintln(w, "\nAI feedback is still being generated.")
	case domain.FeedbackFailed, domain.FeedbackGaveUp:
		fmt.Fprintf(w, "\n%s\n", view.Message())
	}
}

// userMessage picks the text shown on stderr for a failed command.
func userMessage(err error) string {
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		if domainErr.Code == domain.ErrValidation && domainErr.Err != nil {
			return fmt.Sprintf("%s (%v)", domainErr.Message, domainErr.Err)
		}
		return domainErr.Message
	}
	if errors.Is(err, context.Canceled) {
		return "Interrupted."
	}
	return err.Error()
}
