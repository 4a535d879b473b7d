// Пакет selection — упорядоченное множество выбранных записей.
// Движок обогащения строит из него набор кандидатов запуска: дубликаты
// отбрасываются, после сверки с хранилищем остаются только записи в pending.
package selection

import "github.com/google/uuid"

// Set — упорядоченное множество идентификаторов записей.
// Порядок — порядок добавления. Нулевое значение готово к использованию.
// Не потокобезопасно.
type Set struct {
	order []uuid.UUID
	index map[uuid.UUID]struct{}
}

// New создаёт множество из ids (дубликаты отбрасываются).
func New(ids ...uuid.UUID) *Set {
	s := &Set{}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Len возвращает количество выбранных записей.
func (s *Set) Len() int {
	return len(s.order)
}

// Contains сообщает, выбрана ли запись.
func (s *Set) Contains(id uuid.UUID) bool {
	_, ok := s.index[id]
	return ok
}

// Add добавляет запись. Возвращает false, если запись уже выбрана.
func (s *Set) Add(id uuid.UUID) bool {
	if s.index == nil {
		s.index = make(map[uuid.UUID]struct{})
	}
	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

// Remove убирает запись. Возвращает false, если запись не была выбрана.
func (s *Set) Remove(id uuid.UUID) bool {
	if _, ok := s.index[id]; !ok {
		return false
	}
	delete(s.index, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Toggle переключает выбор записи и возвращает новое состояние.
func (s *Set) Toggle(id uuid.UUID) bool {
	if s.Remove(id) {
		return false
	}
	s.Add(id)
	return true
}

// IDs возвращает копию выбранных идентификаторов в порядке добавления.
func (s *Set) IDs() []uuid.UUID {
	out := make([]uuid.UUID, len(s.order))
	copy(out, s.order)
	return out
}

// TogglePage — «выбрать все pending на странице». Если выбраны не все
// pageIDs, они добавляются; иначе все снимаются. Возвращает true, если
// после вызова все pageIDs выбраны. Пустая страница ничего не меняет.
func (s *Set) TogglePage(pageIDs []uuid.UUID) bool {
	if len(pageIDs) == 0 {
		return false
	}
	allSelected := true
	for _, id := range pageIDs {
		if !s.Contains(id) {
			allSelected = false
			break
		}
	}
	if allSelected {
		for _, id := range pageIDs {
			s.Remove(id)
		}
		return false
	}
	for _, id := range pageIDs {
		s.Add(id)
	}
	return true
}

// Retain оставляет только записи, которые всё ещё в pending.
// Возвращает количество снятых с выбора записей.
func (s *Set) Retain(pendingIDs []uuid.UUID) int {
	keep := make(map[uuid.UUID]struct{}, len(pendingIDs))
	for _, id := range pendingIDs {
		keep[id] = struct{}{}
	}
	removed := 0
	order := s.order[:0]
	for _, id := range s.order {
		if _, ok := keep[id]; ok {
			order = append(order, id)
			continue
		}
		delete(s.index, id)
		removed++
	}
	s.order = order
	return removed
}
