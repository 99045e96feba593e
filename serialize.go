package orm

type serializer struct {
	pojo bool
	seen map[any]struct{}
}

func newSerializer(pojo bool) *serializer {
	return &serializer{pojo: pojo, seen: map[any]struct{}{}}
}

func (s *serializer) visit(entity any) {
	s.seen[entity] = struct{}{}
}

func (s *serializer) visited(entity any) bool {
	_, ok := s.seen[entity]
	return ok
}
