package validation

import (
	"regexp"
	"strings"

	"github.com/mmeshcher/clientbook/internal/model"
)

var (
	namePattern  = regexp.MustCompile(`^[А-ЯЁа-яё\-]+$`)
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	phonePattern = regexp.MustCompile(`^\+7\d{10}$`)

	phoneSeparators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "", "\t", "")
)

// Теги правил полей клиента. Ограничения длины совпадают со схемой хранилища.
const (
	nameTag         = "required,cyrillic_name,min=2,max=50"
	emailTag        = "max=100,email,email_tld"
	phoneTag        = "ru_phone"
	cityTag         = "max=50"
	clientStatusTag = "oneof=active inactive"
)

// CheckName проверяет имя, фамилию или отчество: кириллица и дефис, длина от 2 до 50 символов.
func CheckName(field, value string) []Violation {
	return checkVar(field, strings.TrimSpace(value), nameTag)
}

// IsValidEmail проверяет формат адреса local@domain.tld.
func IsValidEmail(email string) bool {
	return validate.Var(strings.TrimSpace(email), "email,email_tld") == nil
}

// CheckEmail проверяет необязательный email. Уникальность проверяется хранилищем.
func CheckEmail(field, value string) []Violation {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	return checkVar(field, v, emailTag)
}

// NormalizeEmail приводит email к каноническому виду.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone удаляет разделители и приводит номер к виду +7XXXXXXXXXX, если это возможно.
func NormalizePhone(phone string) string {
	p := phoneSeparators.Replace(strings.TrimSpace(phone))
	if len(p) == 11 && isDigits(p) {
		switch p[0] {
		case '8', '7':
			return "+7" + p[1:]
		}
	}
	return p
}

// IsValidPhone проверяет номер в формате +7XXXXXXXXXX после нормализации.
func IsValidPhone(phone string) bool {
	return phonePattern.MatchString(NormalizePhone(phone))
}

// CheckPhone проверяет необязательный номер телефона.
func CheckPhone(field, value string) []Violation {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return checkVar(field, value, phoneTag)
}

// CheckCity проверяет длину названия города.
func CheckCity(field, value string) []Violation {
	return checkVar(field, strings.TrimSpace(value), cityTag)
}

// CheckClientStatus проверяет статус клиента.
func CheckClientStatus(field string, s model.ClientStatus) []Violation {
	return checkVar(field, s, clientStatusTag)
}

// ClientInput проверяет данные для создания клиента.
func ClientInput(in model.ClientInput) []Violation {
	var vs []Violation
	vs = append(vs, CheckName("first_name", in.FirstName)...)
	vs = append(vs, CheckName("last_name", in.LastName)...)
	if strings.TrimSpace(in.Patronymic) != "" {
		vs = append(vs, CheckName("patronymic", in.Patronymic)...)
	}
	vs = append(vs, CheckEmail("email", in.Email)...)
	vs = append(vs, CheckPhone("phone", in.Phone)...)
	vs = append(vs, CheckCity("city", in.City)...)
	if in.Status != "" {
		vs = append(vs, CheckClientStatus("status", in.Status)...)
	}
	return vs
}

// ClientPatch проверяет только переданные поля частичного обновления.
func ClientPatch(p model.ClientPatch) []Violation {
	var vs []Violation
	if p.FirstName != nil {
		vs = append(vs, CheckName("first_name", *p.FirstName)...)
	}
	if p.LastName != nil {
		vs = append(vs, CheckName("last_name", *p.LastName)...)
	}
	if p.Patronymic != nil && strings.TrimSpace(*p.Patronymic) != "" {
		vs = append(vs, CheckName("patronymic", *p.Patronymic)...)
	}
	if p.Email != nil {
		vs = append(vs, CheckEmail("email", *p.Email)...)
	}
	if p.Phone != nil {
		vs = append(vs, CheckPhone("phone", *p.Phone)...)
	}
	if p.City != nil {
		vs = append(vs, CheckCity("city", *p.City)...)
	}
	if p.Status != nil {
		vs = append(vs, CheckClientStatus("status", *p.Status)...)
	}
	return vs
}

// ClientFilter проверяет критерии поиска клиентов.
func ClientFilter(f model.ClientFilter) []Violation {
	var vs []Violation
	if f.Status != "" {
		vs = append(vs, CheckClientStatus("status", f.Status)...)
	}
	if f.MinOrders != nil {
		vs = append(vs, checkVar("min_orders", *f.MinOrders, "gte=0")...)
	}
	if f.MaxOrders != nil {
		vs = append(vs, checkVar("max_orders", *f.MaxOrders, "gte=0")...)
	}
	if f.MinOrders != nil && f.MaxOrders != nil && *f.MinOrders > *f.MaxOrders {
		vs = append(vs, violation("min_orders", CodeOutOfRange, "must not exceed max_orders"))
	}
	return vs
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
