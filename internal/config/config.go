// Package config loads the rekey configuration: table and field names,
// dependent and reference lists, sampling, and hosted-store tuning.
//
// A file is optional. Values it sets replace the production defaults; a
// list it sets replaces the whole default list. The merged result is
// checked against an embedded CUE schema and then against rules the
// schema cannot express.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/rekey/internal/airtable"
	"github.com/roach88/rekey/internal/backfill"
	"github.com/roach88/rekey/internal/model"
	"github.com/roach88/rekey/internal/reconcile"
	"github.com/roach88/rekey/internal/recordstore"
	"github.com/roach88/rekey/internal/validate"
)

//go:embed schema.cue
var schemaCUE []byte

// Config is the complete run configuration.
type Config struct {
	Tables          Tables                `yaml:"tables" json:"tables"`
	Fields          Fields                `yaml:"fields" json:"fields"`
	Dependents      []reconcile.Dependent `yaml:"dependents" json:"dependents"`
	ClassDependents []reconcile.Dependent `yaml:"class_dependents" json:"class_dependents"`
	MergeClasses    bool                  `yaml:"merge_classes" json:"merge_classes"`
	References      []validate.Reference  `yaml:"references" json:"references"`
	SampleSize      int                   `yaml:"sample_size" json:"sample_size"`
	Store           Store                 `yaml:"store" json:"store"`
}

// Tables names the entity tables. Dependent tables are named by their entries.
type Tables struct {
	Events  string `yaml:"events" json:"events"`
	Classes string `yaml:"classes" json:"classes"`
	Journey string `yaml:"journey" json:"journey"`
}

// Fields maps entity attributes to field names per table.
type Fields struct {
	Event   model.EventFields   `yaml:"event" json:"event"`
	Class   model.ClassFields   `yaml:"class" json:"class"`
	Journey model.JourneyFields `yaml:"journey" json:"journey"`
}

// Store tunes the hosted store client.
type Store struct {
	RateLimit float64       `yaml:"rate_limit" json:"rate_limit"`
	PageSize  int           `yaml:"page_size" json:"page_size"`
	BatchSize int           `yaml:"batch_size" json:"batch_size"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	Retries   int           `yaml:"retries" json:"retries"`
}

// Default returns the production configuration.
func Default() Config {
	rec := reconcile.DefaultOptions()
	val := validate.DefaultOptions()
	bf := backfill.DefaultOptions()
	return Config{
		Tables: Tables{
			Events:  rec.EventsTable,
			Classes: rec.ClassesTable,
			Journey: bf.JourneyTable,
		},
		Fields: Fields{
			Event:   model.DefaultEventFields(),
			Class:   model.DefaultClassFields(),
			Journey: model.DefaultJourneyFields(),
		},
		Dependents:      rec.Dependents,
		ClassDependents: rec.ClassDependents,
		MergeClasses:    rec.MergeClasses,
		References:      val.References,
		SampleSize:      val.SampleSize,
		Store: Store{
			RateLimit: 5,
			PageSize:  100,
			BatchSize: recordstore.MaxBatch,
			Timeout:   30 * time.Second,
			Retries:   4,
		},
	}
}

// Load reads the file at path over the defaults and validates the result.
// An empty path yields the validated defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes YAML from r over the defaults and validates the result.
// Unknown keys are rejected.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ValidationError is one configuration problem.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// ValidationErrors collects every problem found.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return "invalid config: " + strings.Join(msgs, "; ")
}

// Validate checks c against the schema and the cross-field rules.
// It returns ValidationErrors or nil.
func (c Config) Validate() error {
	errs := c.checkSchema()
	if len(errs) > 0 {
		return errs
	}

	seen := make(map[string]bool)
	for i, d := range c.Dependents {
		errs = append(errs, checkDependent(fmt.Sprintf("dependents[%d]", i), d, seen)...)
	}
	for i, d := range c.ClassDependents {
		errs = append(errs, checkDependent(fmt.Sprintf("class_dependents[%d]", i), d, seen)...)
	}

	names := make(map[string]bool)
	for i, r := range c.References {
		if names[r.Name] {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("references[%d].name", i), Message: "duplicate reference " + r.Name})
		}
		names[r.Name] = true
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func checkDependent(field string, d reconcile.Dependent, seen map[string]bool) ValidationErrors {
	var errs ValidationErrors
	if d.TextField == "" && d.LinkField == "" {
		errs = append(errs, ValidationError{Field: field, Message: "one of text_field or link_field is required"})
	}
	if seen[d.Name] {
		errs = append(errs, ValidationError{Field: field + ".name", Message: "duplicate dependent " + d.Name})
	}
	seen[d.Name] = true
	return errs
}

// checkSchema unifies c with the embedded #Config definition.
func (c Config) checkSchema() ValidationErrors {
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return ValidationErrors{{Message: "compile schema: " + err.Error()}}
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	// Absent lists encode as null; the schema expects lists.
	if c.Dependents == nil {
		c.Dependents = []reconcile.Dependent{}
	}
	if c.ClassDependents == nil {
		c.ClassDependents = []reconcile.Dependent{}
	}
	if c.References == nil {
		c.References = []validate.Reference{}
	}

	v := def.Unify(ctx.Encode(c))
	err := v.Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}

	var errs ValidationErrors
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		errs = append(errs, ValidationError{
			Field:   strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
		})
	}
	return errs
}

// ReconcileOptions returns the engine options described by c.
func (c Config) ReconcileOptions() reconcile.Options {
	opts := reconcile.DefaultOptions()
	opts.EventsTable = c.Tables.Events
	opts.ClassesTable = c.Tables.Classes
	opts.EventFields = c.Fields.Event
	opts.ClassFields = c.Fields.Class
	opts.Dependents = c.Dependents
	opts.ClassDependents = c.ClassDependents
	opts.MergeClasses = c.MergeClasses
	return opts
}

// ValidateOptions returns the validator options described by c.
func (c Config) ValidateOptions() validate.Options {
	return validate.Options{
		EventsTable:  c.Tables.Events,
		ClassesTable: c.Tables.Classes,
		EventFields:  c.Fields.Event,
		ClassFields:  c.Fields.Class,
		References:   c.References,
		SampleSize:   c.SampleSize,
	}
}

// BackfillOptions returns the backfill options described by c.
func (c Config) BackfillOptions() backfill.Options {
	return backfill.Options{
		JourneyTable:  c.Tables.Journey,
		EventsTable:   c.Tables.Events,
		ClassesTable:  c.Tables.Classes,
		JourneyFields: c.Fields.Journey,
		EventFields:   c.Fields.Event,
		ClassFields:   c.Fields.Class,
	}
}

// Airtable returns the hosted client settings for creds.
func (c Config) Airtable(creds Credentials) airtable.Config {
	return airtable.Config{
		BaseURL:   creds.BaseURL,
		BaseID:    creds.BaseID,
		APIKey:    creds.APIKey,
		Timeout:   c.Store.Timeout,
		RateLimit: c.Store.RateLimit,
		PageSize:  c.Store.PageSize,
		BatchSize: c.Store.BatchSize,
		Retries:   c.Store.Retries,
	}
}
