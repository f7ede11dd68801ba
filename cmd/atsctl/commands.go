package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"candidate-service/common/logger"
	"candidate-service/common/metrics"
	"candidate-service/internal/candidate"
	"candidate-service/internal/client"
	"candidate-service/internal/config"
	"candidate-service/internal/listing"
	"candidate-service/internal/messaging"
	"candidate-service/internal/upload"

	"github.com/spf13/pflag"
)

const (
	defaultAPI     = "http://localhost:3010"
	defaultNATS    = "nats://localhost:4222"
	defaultSubject = "candidates.created"
)

const usage = `usage: atsctl <command> [flags]

commands:
  submit   validate and submit a candidate, optionally with a CV
  list     list candidates with optional filters and sorting
  get      show one candidate by id
  watch    print candidate-created events from NATS
`

type cli struct {
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	c := &cli{stdout: stdout, stderr: stderr, logger: logger.NewWithWriter(stderr)}

	var err error
	switch args[0] {
	case "submit":
		err = c.submit(ctx, args[1:])
	case "list":
		err = c.list(ctx, args[1:])
	case "get":
		err = c.get(ctx, args[1:])
	case "watch":
		err = c.watch(ctx, args[1:])
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		c.reportError(err)
		return 1
	}
	return 0
}

func (c *cli) reportError(err error) {
	var apiErr *client.APIError
	var validationErr *candidate.ValidationError
	var rejected *upload.RejectedError
	switch {
	case errors.As(err, &apiErr):
		fmt.Fprintf(c.stderr, "%s: %s\n", apiErr.Title(), apiErr.Message)
	case errors.As(err, &validationErr):
		c.reportValidation(validationErr)
	case errors.As(err, &rejected):
		fmt.Fprintf(c.stderr, "Submission Error: %s\n", rejected.Reason)
	default:
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
	}
}

// reportValidation prints each distinct message once, in field order.
func (c *cli) reportValidation(err *candidate.ValidationError) {
	if len(err.Fields) == 0 {
		fmt.Fprintf(c.stderr, "Submission Error: %s\n", err.Message)
		return
	}
	seen := make(map[string]bool, len(err.Fields))
	for _, f := range err.Fields {
		if seen[f.Message] {
			continue
		}
		seen[f.Message] = true
		fmt.Fprintf(c.stderr, "Submission Error: %s\n", f.Message)
	}
}

// loadConfig supplies flag defaults. A missing or broken config falls back to built-in values.
func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		cfg = &config.Config{}
	}
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = defaultAPI
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = defaultNATS
	}
	if cfg.NATS.Subject == "" {
		cfg.NATS.Subject = defaultSubject
	}
	return cfg
}

func apiFlag(fs *pflag.FlagSet) *string {
	return fs.String("api", loadConfig().API.BaseURL, "candidate service base URL")
}

func newFlagSet(name string, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func (c *cli) submit(ctx context.Context, args []string) error {
	fs := newFlagSet("submit", c.stderr)
	apiURL := apiFlag(fs)
	var in candidate.Input
	fs.StringVar(&in.FirstName, "first-name", "", "first name (required)")
	fs.StringVar(&in.LastName, "last-name", "", "last name (required)")
	fs.StringVar(&in.Email, "email", "", "email address (required)")
	fs.StringVar(&in.PhoneNumber, "phone", "", "phone number")
	fs.StringVar(&in.Address, "address", "", "postal address")
	fs.StringVar(&in.Education, "education", "", "education level: "+strings.Join(candidate.EducationOptions, ", "))
	fs.StringVar(&in.WorkExperience, "work-experience", "", "work experience summary")
	years := fs.Int("experience-years", 0, "years of experience (0-80)")
	cvPath := fs.String("cv", "", "path to a PDF or DOCX resume")
	maxBytes := fs.Int64("max-file-bytes", upload.DefaultMaxBytes, "largest CV accepted before upload")
	retries := fs.Int("retry", 0, "resubmit up to N times on server or network failure")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.Changed("experience-years") {
		in.ExperienceYears = years
	}

	prepared, err := candidate.NewValidator(candidate.Policy{EnforceEducation: true}).Prepare(in)
	if err != nil {
		return err
	}

	var cv *client.Attachment
	if *cvPath != "" {
		cv, err = checkAttachment(*cvPath, upload.Policy{MaxBytes: *maxBytes})
		if err != nil {
			return err
		}
	}

	api := client.New(*apiURL, nil)
	var created *candidate.Candidate
	for attempt := 0; ; attempt++ {
		created, err = api.CreateCandidate(ctx, prepared, cv)
		if err == nil || attempt >= *retries || !retryable(err) {
			break
		}
		wait := time.Duration(attempt+1) * 500 * time.Millisecond
		c.logger.Warn("submission failed, retrying", "attempt", attempt+1, "of", *retries, "wait", wait, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(created)
}

// checkAttachment applies the server's type and size policy before any bytes are sent.
func checkAttachment(path string, policy upload.Policy) (*client.Attachment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if err := policy.CheckSize(info.Size()); err != nil {
		return nil, err
	}

	head := make([]byte, 3072)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}

	cv := client.FileAttachment(path)
	contentType, err := policy.CheckType(cv.ContentType, cv.Filename, head[:n])
	if err != nil {
		return nil, err
	}
	cv.ContentType = contentType
	return cv, nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}

func (c *cli) list(ctx context.Context, args []string) error {
	fs := newFlagSet("list", c.stderr)
	apiURL := apiFlag(fs)
	search := fs.String("search", "", "match first name, last name or email")
	education := fs.String("education", "", "exact education level")
	experience := fs.String("experience", "", "experience bucket: 0-2, 3-5, 5+")
	sorts := fs.StringArray("sort", nil, "sort column, repeat to toggle direction: "+sortNames())
	reset := fs.Bool("reset", false, "ignore filters and sorting")
	asJSON := fs.Bool("json", false, "print JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return err
	}

	bucket, err := listing.ParseBucket(*experience)
	if err != nil {
		return err
	}

	candidates, err := client.New(*apiURL, nil).ListCandidates(ctx)
	if err != nil {
		return err
	}

	view := listing.New()
	view.Load(candidates)
	view.SetFilters(listing.Filters{Search: *search, Education: *education, Experience: bucket})
	for _, s := range *sorts {
		field, err := listing.ParseSortField(s)
		if err != nil {
			return err
		}
		view.SortBy(field)
	}
	if *reset {
		view.Reset()
	}

	rows := view.Rows()
	if *asJSON {
		enc := json.NewEncoder(c.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	return writeTable(c.stdout, rows)
}

func (c *cli) get(ctx context.Context, args []string) error {
	fs := newFlagSet("get", c.stderr)
	apiURL := apiFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("get takes exactly one candidate id")
	}
	id, err := strconv.Atoi(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("invalid candidate id %q", fs.Arg(0))
	}

	found, err := client.New(*apiURL, nil).GetCandidate(ctx, id)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(found)
}

func writeTable(w io.Writer, rows []candidate.Candidate) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tPHONE\tEDUCATION\tYEARS\tCV\tCREATED")
	for _, r := range rows {
		cv := "-"
		if r.CVURL != nil {
			cv = *r.CVURL
		}
		fmt.Fprintf(tw, "%d\t%s %s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			r.ID,
			r.FirstName, r.LastName,
			r.Email,
			orDash(r.PhoneNumber),
			orDash(r.Education),
			r.YearsOfExperience(),
			cv,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	fmt.Fprintf(tw, "\n%d candidate(s)\n", len(rows))
	return tw.Flush()
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func sortNames() string {
	names := []string{
		string(listing.SortName), string(listing.SortEmail), string(listing.SortPhoneNumber),
		string(listing.SortEducation), string(listing.SortWorkExperience), string(listing.SortCreatedAt),
	}
	return strings.Join(names, ", ")
}

func (c *cli) watch(ctx context.Context, args []string) error {
	cfg := loadConfig()
	fs := newFlagSet("watch", c.stderr)
	natsURL := fs.String("nats", cfg.NATS.URL, "NATS server URL")
	subject := fs.String("subject", cfg.NATS.Subject, "subject candidate events are published on")
	count := fs.Int("count", 0, "exit after N events, 0 waits until interrupted")
	if err := fs.Parse(args); err != nil {
		return err
	}

	consumer, err := messaging.NewConsumer(*natsURL, *subject, c.logger, metrics.NewMock())
	if err != nil {
		return err
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	seen := 0
	return consumer.Start(ctx, func(_ context.Context, key string, event candidate.CreatedEvent) error {
		if *count > 0 && seen >= *count {
			return nil
		}
		cv := "-"
		if event.CVURL != nil {
			cv = *event.CVURL
		}
		fmt.Fprintf(c.stdout, "%s\tcandidate %s created: %s %s <%s> cv=%s\n",
			event.CreatedAt.Format(time.RFC3339), key, event.FirstName, event.LastName, event.Email, cv)

		seen++
		if *count > 0 && seen >= *count {
			cancel()
		}
		return nil
	})
}
