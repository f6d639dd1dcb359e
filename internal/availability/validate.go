package availability

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// ValidatePattern checks a pattern before it is persisted.
func ValidatePattern(p SessionPattern) error {
	problems := structProblems(p)
	if p.ClinicID == uuid.Nil {
		problems = append(problems, "clinic_id is required")
	}
	if p.DoctorID == uuid.Nil {
		problems = append(problems, "doctor_id is required")
	}
	if err := checkWindows(p); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return invalid(problems...)
	}
	return nil
}

// checkWindows enforces window ordering and non-overlap. SlotComputer runs it on
// stored patterns too, so a bad row read back from storage is still caught.
func checkWindows(p SessionPattern) error {
	windows := p.Windows()
	if len(windows) == 0 {
		return errors.New("at least one of morning or evening window is required")
	}
	for _, w := range windows {
		if !w.Start.Valid() || !w.End.Valid() {
			return fmt.Errorf("window %s-%s is outside the day", w.Start, w.End)
		}
		if w.Start >= w.End {
			return fmt.Errorf("window start %s must be before end %s", w.Start, w.End)
		}
	}
	if len(windows) == 2 && windows[0].Overlaps(windows[1]) {
		return fmt.Errorf("morning %s-%s overlaps evening %s-%s",
			windows[0].Start, windows[0].End, windows[1].Start, windows[1].End)
	}
	if p.SlotDurationMinutes <= 0 {
		return fmt.Errorf("slot duration %d must be positive", p.SlotDurationMinutes)
	}
	return nil
}

func ValidateHoliday(h Holiday) error {
	problems := structProblems(h)
	if h.ClinicID == uuid.Nil {
		problems = append(problems, "clinic_id is required")
	}
	if h.Date.IsZero() {
		problems = append(problems, "date is required")
	}
	if h.DoctorID != nil && *h.DoctorID == uuid.Nil {
		problems = append(problems, "doctor_id must be omitted or a valid id")
	}
	if len(problems) > 0 {
		return invalid(problems...)
	}
	return nil
}

func ValidatePolicy(p BookingPolicy) error {
	if problems := structProblems(p); len(problems) > 0 {
		return invalid(problems...)
	}
	return nil
}

func structProblems(v any) []string {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		out = append(out, fmt.Sprintf("%s must satisfy %s", toSnake(fe.Field()), rule))
	}
	return out
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
