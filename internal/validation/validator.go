package validation

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"fms-backend/internal/model"
	"fms-backend/internal/store"
)

// Policy decides what happens to a second HM reading for the same
// unit, date and shift.
type Policy string

const (
	PolicyReject Policy = "reject"
	PolicyWarn   Policy = "warn"
	PolicyAllow  Policy = "allow"
)

// Options configures a Validator.
type Options struct {
	DuplicateShiftPolicy    Policy
	AllowDuplicateUnitCodes bool
}

// Validator checks domain rules against the current store contents.
type Validator struct {
	store    store.Reader
	validate *validator.Validate
	opts     Options
}

// NewValidator creates a Validator reading from r.
func NewValidator(r store.Reader, opts Options) *Validator {
	if opts.DuplicateShiftPolicy == "" {
		opts.DuplicateShiftPolicy = PolicyReject
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return &Validator{store: r, validate: v, opts: opts}
}

// ValidateHMEntry rejects value when it is below the highest reading ever
// recorded for the unit.
func (v *Validator) ValidateHMEntry(ctx context.Context, unitID int64, value float64) error {
	prev, err := v.store.MaxHMLog(ctx, unitID)
	if err != nil {
		return err
	}
	if prev != nil && value < prev.HMValue {
		return &MonotonicityViolation{UnitID: unitID, Previous: prev.HMValue, Submitted: value}
	}
	return nil
}

// CheckDuplicateShift applies the duplicate policy to (unitID, date, shift).
// Under PolicyWarn an existing reading yields a warning and no error.
func (v *Validator) CheckDuplicateShift(ctx context.Context, unitID int64, date string, shift model.Shift) (string, error) {
	if v.opts.DuplicateShiftPolicy == PolicyAllow {
		return "", nil
	}

	existing, err := v.store.FindByIndex(ctx, model.CollectionHMLogs, "unit_id+date+shift", unitID, date, shift)
	if err != nil {
		return "", err
	}
	if len(existing) == 0 {
		return "", nil
	}

	msg := fmt.Sprintf("an HM reading for this unit already exists on %s (%s shift)", date, shift)
	if v.opts.DuplicateShiftPolicy == PolicyWarn {
		return msg, nil
	}
	return "", failf("shift", "%s", msg)
}

// ValidateUnitForm checks required fields and, unless duplicates are
// allowed, that no other unit uses the same code. selfID is the unit being
// edited, or 0 for a new one.
func (v *Validator) ValidateUnitForm(ctx context.Context, form UnitForm, selfID int64) error {
	if err := v.checkStruct(form); err != nil {
		return err
	}
	if v.opts.AllowDuplicateUnitCodes {
		return nil
	}

	same, err := store.FindBy[model.Unit](ctx, v.store, "code", form.Code)
	if err != nil {
		return err
	}
	for _, u := range same {
		if u.ID != selfID {
			return failf("code", "unit code %q is already in use", form.Code)
		}
	}
	return nil
}

// ValidateHMForm checks required fields and that the unit exists.
func (v *Validator) ValidateHMForm(ctx context.Context, form HMEntryForm) error {
	if err := v.checkStruct(form); err != nil {
		return err
	}
	return v.requireExists(ctx, model.CollectionUnits, form.UnitID, "unit_id")
}

// ValidateBreakdownForm checks required fields, that the unit and component
// exist, that Start is not after now and that End does not precede Start.
func (v *Validator) ValidateBreakdownForm(ctx context.Context, form BreakdownForm, now time.Time) error {
	if err := v.checkStruct(form); err != nil {
		return err
	}
	if form.Start.After(now) {
		return failf("start", "breakdown start cannot be in the future")
	}
	if form.End != nil && form.End.Before(form.Start) {
		return failf("end", "RFU time cannot be before the breakdown start")
	}
	if err := v.requireExists(ctx, model.CollectionUnits, form.UnitID, "unit_id"); err != nil {
		return err
	}
	return v.requireExists(ctx, model.CollectionComponents, *form.ComponentID, "component_id")
}

func (v *Validator) requireExists(ctx context.Context, c model.Collection, id int64, field string) error {
	_, err := v.store.Get(ctx, c, id)
	if errors.Is(err, store.ErrNotFound) {
		return failf(field, "%s %d does not exist", strings.TrimSuffix(field, "_id"), id)
	}
	return err
}

func (v *Validator) checkStruct(form any) error {
	err := v.validate.Struct(form)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	return &Failure{Field: fe.Field(), Message: describe(fe)}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "datetime":
		return fmt.Sprintf("%s must be a date in YYYY-MM-DD form", fe.Field())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
