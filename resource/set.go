package resource

// idSet is a set of resource IDs that remembers insertion order.
type idSet struct {
	ids   []ID
	index map[ID]struct{}
}

func newIDSet() *idSet {
	return &idSet{index: make(map[ID]struct{})}
}

func (s *idSet) contains(id ID) bool {
	_, ok := s.index[id]
	return ok
}

// add inserts the id and tells if it was not present before.
func (s *idSet) add(id ID) bool {
	if s.contains(id) {
		return false
	}

	s.ids = append(s.ids, id)
	s.index[id] = struct{}{}

	return true
}

// remove deletes the id and tells if it was present.
func (s *idSet) remove(id ID) bool {
	if !s.contains(id) {
		return false
	}

	delete(s.index, id)

	for i, existing := range s.ids {
		if existing == id {
			s.ids = append(s.ids[:i], s.ids[i+1:]...)
			break
		}
	}

	return true
}

func (s *idSet) list() []ID {
	list := make([]ID, len(s.ids))
	copy(list, s.ids)

	return list
}

func (s *idSet) len() int {
	return len(s.ids)
}
