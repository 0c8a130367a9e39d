package validation

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/clientbook/internal/model"
)

func TestCheckName(t *testing.T) {
	tests := []struct {
		name  string
		value string
		code  string
	}{
		{name: "cyrillic", value: "Иван", code: ""},
		{name: "hyphenated", value: "Римский-Корсаков", code: ""},
		{name: "yo letter", value: "Ёлкин", code: ""},
		{name: "surrounding spaces", value: "  Пётр ", code: ""},
		{name: "empty", value: "", code: CodeRequired},
		{name: "blank", value: "   ", code: CodeRequired},
		{name: "latin", value: "Ivan", code: CodeInvalidFormat},
		{name: "mixed scripts", value: "Иvan", code: CodeInvalidFormat},
		{name: "digits", value: "Иван2", code: CodeInvalidFormat},
		{name: "too short", value: "И", code: CodeTooShort},
		{name: "too long", value: "Ааааааааааааааааааааааааааааааааааааааааааааааааааа", code: CodeTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vs := CheckName("first_name", tt.value)
			if tt.code == "" {
				if len(vs) != 0 {
					t.Fatalf("CheckName(%q) = %v, want no violations", tt.value, vs)
				}
				return
			}
			if len(vs) != 1 || vs[0].Code != tt.code {
				t.Fatalf("CheckName(%q) = %v, want code %s", tt.value, vs, tt.code)
			}
		})
	}
}

func TestEmailAndPhone(t *testing.T) {
	tests := []struct {
		name  string
		email string
		phone string
		valid bool
	}{
		{name: "both absent", valid: true},
		{name: "valid pair", email: "ivan@mail.example", phone: "+79161234567", valid: true},
		{name: "phone with separators", phone: "+7 (916) 123-45-67", valid: true},
		{name: "phone with leading 8", phone: "8 916 123 45 67", valid: true},
		{name: "email without tld", email: "ivan@mail", valid: false},
		{name: "email without at", email: "ivan.mail.ru", valid: false},
		{name: "short phone", phone: "+7916123456", valid: false},
		{name: "foreign phone", phone: "+4915112345678", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vs := append(CheckEmail("email", tt.email), CheckPhone("phone", tt.phone)...)
			if got := len(vs) == 0; got != tt.valid {
				t.Fatalf("email=%q phone=%q: valid = %v, want %v (%v)", tt.email, tt.phone, got, tt.valid, vs)
			}
		})
	}
}

func TestNormalizePhone(t *testing.T) {
	if got := NormalizePhone("8 (916) 123-45-67"); got != "+79161234567" {
		t.Fatalf("NormalizePhone = %q, want +79161234567", got)
	}
	if got := NormalizePhone("+7 916 123 45 67"); got != "+79161234567" {
		t.Fatalf("NormalizePhone = %q, want +79161234567", got)
	}
}

func TestClientInputReportsEveryViolation(t *testing.T) {
	vs := ClientInput(model.ClientInput{
		FirstName: "Ivan",
		LastName:  "",
		Email:     "broken",
		Phone:     "123",
		Status:    "deleted",
	})

	fields := map[string]string{}
	for _, v := range vs {
		fields[v.Field] = v.Code
	}

	want := map[string]string{
		"first_name": CodeInvalidFormat,
		"last_name":  CodeRequired,
		"email":      CodeInvalidFormat,
		"phone":      CodeInvalidFormat,
		"status":     CodeInvalidEnum,
	}
	for field, code := range want {
		if fields[field] != code {
			t.Fatalf("violation for %s = %q, want %q (all: %v)", field, fields[field], code, vs)
		}
	}
}

func TestClientPatchChecksOnlySuppliedFields(t *testing.T) {
	city := "Казань"
	if vs := ClientPatch(model.ClientPatch{City: &city}); len(vs) != 0 {
		t.Fatalf("unexpected violations: %v", vs)
	}

	empty := ""
	if vs := ClientPatch(model.ClientPatch{Email: &empty, Patronymic: &empty}); len(vs) != 0 {
		t.Fatalf("clearing optional fields must pass, got %v", vs)
	}

	latin := "Ivanov"
	vs := ClientPatch(model.ClientPatch{LastName: &latin})
	if len(vs) != 1 || vs[0].Field != "last_name" {
		t.Fatalf("unexpected violations: %v", vs)
	}
}

func TestOrderInput(t *testing.T) {
	amount := func(s string) *decimal.Decimal {
		d := decimal.RequireFromString(s)
		return &d
	}

	tests := []struct {
		name   string
		input  model.OrderInput
		fields []string
	}{
		{
			name:  "valid",
			input: model.OrderInput{ClientID: 1, TotalAmount: amount("5000")},
		},
		{
			name: "amount derived from items",
			input: model.OrderInput{ClientID: 1, Items: []model.OrderItem{
				{ProductName: "Стол", Quantity: 2, Price: decimal.RequireFromString("100.50")},
			}},
		},
		{
			name:   "missing client and amount",
			input:  model.OrderInput{},
			fields: []string{"client_id", "total_amount"},
		},
		{
			name:   "zero amount",
			input:  model.OrderInput{ClientID: 1, TotalAmount: amount("0")},
			fields: []string{"total_amount"},
		},
		{
			name:   "negative amount",
			input:  model.OrderInput{ClientID: 1, TotalAmount: amount("-1")},
			fields: []string{"total_amount"},
		},
		{
			name:   "bad status and date",
			input:  model.OrderInput{ClientID: 1, TotalAmount: amount("10"), Status: "shipped", OrderDate: "2024-13-45"},
			fields: []string{"status", "order_date"},
		},
		{
			name: "bad items",
			input: model.OrderInput{ClientID: 1, TotalAmount: amount("10"), Items: []model.OrderItem{
				{ProductName: "", Quantity: 0, Price: decimal.RequireFromString("-1")},
			}},
			fields: []string{"items[0].product_name", "items[0].quantity", "items[0].price"},
		},
		{
			name:   "amount beyond storage precision",
			input:  model.OrderInput{ClientID: 1, TotalAmount: amount("1000000000000")},
			fields: []string{"total_amount"},
		},
		{
			name:  "largest storable amount",
			input: model.OrderInput{ClientID: 1, TotalAmount: amount("999999999999.99")},
		},
		{
			name: "item quantity beyond int32",
			input: model.OrderInput{ClientID: 1, TotalAmount: amount("10"), Items: []model.OrderItem{
				{ProductName: "Болт", Quantity: 1 << 31, Price: decimal.Zero},
			}},
			fields: []string{"items[0].quantity"},
		},
		{
			name: "item price beyond storage precision",
			input: model.OrderInput{ClientID: 1, TotalAmount: amount("10"), Items: []model.OrderItem{
				{ProductName: "Станок", Quantity: 1, Price: decimal.RequireFromString("1000000000000")},
			}},
			fields: []string{"items[0].price"},
		},
		{
			name: "derived total beyond storage precision",
			input: model.OrderInput{ClientID: 1, Items: []model.OrderItem{
				{ProductName: "Станок", Quantity: 2, Price: decimal.RequireFromString("600000000000")},
			}},
			fields: []string{"total_amount"},
		},
		{
			name: "product name too long",
			input: model.OrderInput{ClientID: 1, TotalAmount: amount("10"), Items: []model.OrderItem{
				{ProductName: strings.Repeat("я", 201), Quantity: 1, Price: decimal.NewFromInt(10)},
			}},
			fields: []string{"items[0].product_name"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vs := OrderInput(tt.input)
			if len(vs) != len(tt.fields) {
				t.Fatalf("violations = %v, want fields %v", vs, tt.fields)
			}
			for i, f := range tt.fields {
				if vs[i].Field != f {
					t.Fatalf("violation[%d].Field = %q, want %q", i, vs[i].Field, f)
				}
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{"2024-03-05", "05.03.2024", "05/03/2024"} {
		got, err := ParseDate(s)
		if err != nil {
			t.Fatalf("ParseDate(%q) error: %v", s, err)
		}
		if !got.Equal(want) {
			t.Fatalf("ParseDate(%q) = %v, want %v", s, got, want)
		}
	}
	if _, err := ParseDate("March 5"); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount(" 1 500,25 ")
	if err != nil {
		t.Fatalf("ParseAmount error: %v", err)
	}
	if !d.Equal(decimal.RequireFromString("1500.25")) {
		t.Fatalf("ParseAmount = %s, want 1500.25", d)
	}
	if _, err := ParseAmount("abc"); err == nil {
		t.Fatalf("expected error for non-numeric amount")
	}
}

func TestOrderFilter(t *testing.T) {
	lo := decimal.NewFromInt(100)
	hi := decimal.NewFromInt(10)
	vs := OrderFilter(model.OrderFilter{
		MinAmount: &lo,
		MaxAmount: &hi,
		SortBy:    "price",
		SortDir:   "up",
		PerPage:   model.MaxPerPage + 1,
	})
	if len(vs) != 4 {
		t.Fatalf("violations = %v, want 4", vs)
	}

	if vs := OrderFilter(model.OrderFilter{}); len(vs) != 0 {
		t.Fatalf("empty filter must pass, got %v", vs)
	}
}

func TestNewError(t *testing.T) {
	if err := NewError(nil); err != nil {
		t.Fatalf("NewError(nil) = %v, want nil", err)
	}
	err := NewError([]Violation{{Field: "email", Code: CodeInvalidFormat, Message: "bad"}})
	ve, ok := AsError(err)
	if !ok || len(ve.Violations) != 1 {
		t.Fatalf("AsError(%v) = %v, %v", err, ve, ok)
	}
}

func TestClientLengthLimits(t *testing.T) {
	tests := []struct {
		name string
		in   model.ClientInput
		want map[string]string
	}{
		{
			name: "city fits",
			in:   model.ClientInput{FirstName: "Иван", LastName: "Петров", City: strings.Repeat("г", 50)},
			want: map[string]string{},
		},
		{
			name: "city too long",
			in:   model.ClientInput{FirstName: "Иван", LastName: "Петров", City: strings.Repeat("г", 51)},
			want: map[string]string{"city": CodeTooLong},
		},
		{
			name: "email too long",
			in: model.ClientInput{FirstName: "Иван", LastName: "Петров",
				Email: strings.Repeat("a", 95) + "@mail.example"},
			want: map[string]string{"email": CodeTooLong},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := map[string]string{}
			for _, v := range ClientInput(tt.in) {
				got[v.Field] = v.Code
			}
			if len(got) != len(tt.want) {
				t.Fatalf("violations = %v, want %v", got, tt.want)
			}
			for field, code := range tt.want {
				if got[field] != code {
					t.Fatalf("violation for %s = %q, want %q", field, got[field], code)
				}
			}
		})
	}

	long := strings.Repeat("г", 51)
	vs := ClientPatch(model.ClientPatch{City: &long})
	if len(vs) != 1 || vs[0].Field != "city" || vs[0].Code != CodeTooLong {
		t.Fatalf("patch violations = %v, want city too_long", vs)
	}
}

func TestOrderFilterPageBound(t *testing.T) {
	tests := []struct {
		name    string
		page    int
		perPage int
		valid   bool
	}{
		{name: "first page", page: 1, perPage: 50, valid: true},
		{name: "last addressable page", page: math.MaxInt / 50, perPage: 50, valid: true},
		{name: "offset overflows", page: math.MaxInt/50 + 2, perPage: 50, valid: false},
		{name: "default page size", page: math.MaxInt/model.DefaultPerPage + 1, perPage: 0, valid: false},
		{name: "negative page", page: -1, perPage: 10, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vs := OrderFilter(model.OrderFilter{Page: tt.page, PerPage: tt.perPage})
			if got := len(vs) == 0; got != tt.valid {
				t.Fatalf("page=%d per_page=%d: valid = %v, want %v (%v)", tt.page, tt.perPage, got, tt.valid, vs)
			}
			if !tt.valid && (vs[0].Field != "page" || vs[0].Code != CodeOutOfRange) {
				t.Fatalf("violation = %v, want page out_of_range", vs[0])
			}
		})
	}
}
