// Package slots содержит неизменяемый реестр восьми слотов главной страницы.
package slots

import "github.com/junaidookay/mu-online-hub/internal/models"

// FreeSlotID слот бесплатных объявлений: оплата не требуется.
const FreeSlotID = 6

// Slot описание слота главной страницы.
type Slot struct {
	ID            int         `json:"id"`
	Kind          models.Kind `json:"kind"`
	Name          string      `json:"name"`
	Description   string      `json:"description"`
	MaxConcurrent *int        `json:"max_concurrent,omitempty"`
	IsFree        bool        `json:"is_free"`
}

// Table имя таблицы сущностей, которые размещаются в слоте.
func (s Slot) Table() string {
	return s.Kind.Table()
}

func limit(n int) *int { return &n }

var registry = map[int]Slot{
	1: {ID: 1, Kind: models.KindServer, Name: "Top Servers",
		Description: "Premium server listings at the top of the homepage", MaxConcurrent: limit(10)},
	2: {ID: 2, Kind: models.KindTextServer, Name: "Premium Text Servers",
		Description: "Highlighted text rows in the server list", MaxConcurrent: limit(12)},
	3: {ID: 3, Kind: models.KindServer, Name: "Upcoming Servers",
		Description: "Servers announcing their opening date"},
	4: {ID: 4, Kind: models.KindPromo, Name: "Rotating Promos",
		Description: "Promo cards rotating in the hero block", MaxConcurrent: limit(5)},
	5: {ID: 5, Kind: models.KindBanner, Name: "Premium Banners",
		Description: "Large banners under the header", MaxConcurrent: limit(4)},
	6: {ID: 6, Kind: models.KindAdvertisement, Name: "Community Advertisements",
		Description: "Free community advertisements", IsFree: true},
	7: {ID: 7, Kind: models.KindAdvertisement, Name: "Featured Advertisements",
		Description: "Advertisements pinned to the sidebar", MaxConcurrent: limit(8)},
	8: {ID: 8, Kind: models.KindServer, Name: "Server of the Month",
		Description: "Single featured server spotlight", MaxConcurrent: limit(1)},
}

// Get возвращает конфигурацию слота. Неизвестный id -> ok=false,
// вызывающий код должен считать это ошибкой валидации.
func Get(id int) (Slot, bool) {
	s, ok := registry[id]
	if !ok {
		return Slot{}, false
	}
	if s.MaxConcurrent != nil {
		s.MaxConcurrent = limit(*s.MaxConcurrent)
	}
	return s, true
}

// Lookup как Get, но сразу возвращает models.ErrUnknownSlot.
func Lookup(id int) (Slot, error) {
	s, ok := Get(id)
	if !ok {
		return Slot{}, models.ErrUnknownSlot
	}
	return s, nil
}

// All возвращает все слоты по возрастанию id.
func All() []Slot {
	res := make([]Slot, 0, len(registry))
	for id := 1; id <= len(registry); id++ {
		s, _ := Get(id)
		res = append(res, s)
	}
	return res
}

// IsFree сообщает, что слот бесплатный. Для неизвестного слота false.
func IsFree(id int) bool {
	s, ok := registry[id]
	return ok && s.IsFree
}

// Accepts проверяет, что сущность данного типа можно разместить в слоте.
func Accepts(id int, kind models.Kind) error {
	s, err := Lookup(id)
	if err != nil {
		return err
	}
	if s.Kind != kind {
		return models.ErrSlotMismatch
	}
	return nil
}
