package validate

import (
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/chapsmart/chappay/pkg/convert"
)

// Result is the outcome of validating one form field. Normalized holds the
// accepted value on success; Message is the user-facing feedback either way.
type Result struct {
	Valid      bool
	Normalized string
	Message    string
}

func invalid(msg string) Result {
	return Result{Message: msg}
}

// mpesaPrefixes is the allow-list of valid mobile-network prefixes for the
// local leading-zero phone form.
var mpesaPrefixes = map[string]struct{}{}

func init() {
	for _, p := range []string{
		"740", "741", "742", "743", "744", "745", "746", "747", "748", "749",
		"750", "752", "753", "754", "755", "756", "757", "758", "759", "760",
		"761", "762", "763", "764", "765", "766", "767", "768", "769",
		"790", "791", "792", "793", "794", "795",
	} {
		mpesaPrefixes[p] = struct{}{}
	}
}

// Amount checks that raw parses as a number and lies within the variant's
// inclusive bounds. Normalized is the canonical decimal form.
func Amount(raw string, cfg convert.Config) Result {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return invalid("Amount is required.")
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return invalid("Amount must be a valid number.")
	}
	if amount.LessThan(decimal.NewFromInt(cfg.MinFiat)) || amount.GreaterThan(decimal.NewFromInt(cfg.MaxFiat)) {
		return invalid("Amount must be between " + decimal.NewFromInt(cfg.MinFiat).String() +
			" and " + decimal.NewFromInt(cfg.MaxFiat).String() + " TZS.")
	}
	return Result{Valid: true, Normalized: amount.String(), Message: "Valid"}
}

func digitsOnly(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PhoneIntl validates the international form: country code 255 followed by
// nine digits, twelve digits total. Normalized keeps the country code.
func PhoneIntl(raw string) Result {
	number := digitsOnly(raw)
	if !strings.HasPrefix(number, "255") || len(number) != 12 {
		return invalid("Phone must start with 255 and be 12 digits.")
	}
	return Result{Valid: true, Normalized: number, Message: "Phone number is valid."}
}

// PhoneMpesa validates the local leading-zero form: an optional 255 country
// code is stripped, a leading zero re-added, and the network prefix checked
// against the M-Pesa allow-list.
func PhoneMpesa(raw string) Result {
	number := digitsOnly(raw)
	if strings.HasPrefix(number, "255") && len(number) > 3 {
		number = number[3:]
	}
	if len(number) == 9 {
		number = "0" + number
	}
	if len(number) != 10 || !strings.HasPrefix(number, "0") {
		return invalid("Phone number must be 10 digits starting with 0.")
	}
	if _, ok := mpesaPrefixes[number[1:4]]; !ok {
		return invalid("Not an M-Pesa number.")
	}
	return Result{Valid: true, Normalized: number, Message: "Phone number is valid."}
}

// Name requires at least two whitespace-separated tokens, matching the name
// registered with the mobile-money account.
func Name(raw string) Result {
	words := strings.Fields(raw)
	if len(words) < 2 {
		return invalid("Name must contain at least 2 names.")
	}
	return Result{Valid: true, Normalized: strings.Join(words, " "), Message: "Name is valid."}
}

const maxDescriptionLength = 100

// Description is optional free text, length-bounded.
func Description(raw string) Result {
	desc := strings.TrimSpace(raw)
	if len(desc) > maxDescriptionLength {
		return invalid("Description too long.")
	}
	return Result{Valid: true, Normalized: desc, Message: "Valid"}
}

// FieldError ties a validation message to the field it belongs to so the
// presentation layer can render inline feedback.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// Collect combines per-field results into a single error, nil when all valid.
func Collect(fields map[string]Result) error {
	var err error
	for field, res := range fields {
		if !res.Valid {
			err = multierr.Append(err, FieldError{Field: field, Message: res.Message})
		}
	}
	return err
}
