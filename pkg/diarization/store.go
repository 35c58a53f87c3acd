package diarization

// ProfileStore is a fixed-capacity, creation-ordered collection of voice
// profiles. Ids are assigned from a counter and never reused, so removing a
// profile leaves the ids of the others untouched.
type ProfileStore struct {
	profiles [MaxSpeakers]VoiceProfile
	count    int
	nextID   int
}

// NewProfileStore returns a store holding the initial empty "Speaker 1" profile
func NewProfileStore() *ProfileStore {
	s := &ProfileStore{}
	s.Reset()
	return s
}

// Reset discards every profile and re-creates the initial one
func (s *ProfileStore) Reset() {
	for i := range s.profiles {
		s.profiles[i] = VoiceProfile{}
	}
	s.count = 0
	s.nextID = 0
	s.Add()
}

// Len returns the number of live profiles
func (s *ProfileStore) Len() int {
	return s.count
}

// Add appends a new empty profile. It returns nil when the store is full.
func (s *ProfileStore) Add() *VoiceProfile {
	if s.count >= len(s.profiles) {
		return nil
	}
	s.profiles[s.count] = newVoiceProfile(s.nextID)
	s.nextID++
	s.count++
	return &s.profiles[s.count-1]
}

// Get returns the profile with the given id, or nil. The pointer is only
// valid until the next Add, Remove or Reset.
func (s *ProfileStore) Get(id int) *VoiceProfile {
	if i := s.indexOf(id); i >= 0 {
		return &s.profiles[i]
	}
	return nil
}

// Remove deletes the profile with the given id, keeping the order of the rest
func (s *ProfileStore) Remove(id int) bool {
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	copy(s.profiles[i:s.count], s.profiles[i+1:s.count])
	s.count--
	s.profiles[s.count] = VoiceProfile{}
	return true
}

// First returns the oldest live profile
func (s *ProfileStore) First() *VoiceProfile {
	if s.count == 0 {
		return nil
	}
	return &s.profiles[0]
}

// Snapshot returns deep copies of the live profiles in creation order
func (s *ProfileStore) Snapshot() []VoiceProfile {
	out := make([]VoiceProfile, s.count)
	for i := 0; i < s.count; i++ {
		out[i] = s.profiles[i].clone()
	}
	return out
}

// each calls fn for every live profile in creation order
func (s *ProfileStore) each(fn func(p *VoiceProfile)) {
	for i := 0; i < s.count; i++ {
		fn(&s.profiles[i])
	}
}

func (s *ProfileStore) indexOf(id int) int {
	for i := 0; i < s.count; i++ {
		if s.profiles[i].ID == id {
			return i
		}
	}
	return -1
}
