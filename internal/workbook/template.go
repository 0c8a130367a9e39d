package workbook

import "time"

// Template формирует пример книги для импорта данных вида kind.
func Template(kind Kind, today time.Time) ([]byte, error) {
	b, err := newBuilder()
	if err != nil {
		return nil, err
	}
	defer b.close()

	switch kind {
	case KindClients:
		err = b.sheet("Clients",
			[]string{"first_name", "last_name", "patronymic", "email", "phone", "city", "notes"},
			[][]any{
				{"Иван", "Иванов", "Иванович", "ivanov@mail.ru", "+79161234567", "Москва", "Постоянный клиент"},
				{"Мария", "Петрова", "Сергеевна", "petrova@yandex.ru", "+79031234568", "Санкт-Петербург", "Новый клиент"},
			},
		)
	case KindOrders:
		date := today.Format(dateLayout)
		err = b.sheet("Orders",
			[]string{"client_id", "total_amount", "status", "order_date", "description"},
			[][]any{
				{1, 5000.0, "pending", date, "Заказ №1"},
				{2, 7500.0, "completed", date, "Заказ №2"},
			},
		)
	default:
		return nil, ErrUnknownKind
	}
	if err != nil {
		return nil, err
	}
	return b.bytes()
}
