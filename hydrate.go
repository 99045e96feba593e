package orm

// CreateOption configures Create.
type CreateOption func(*createOptions)

type createOptions struct {
	managed bool
	persist *bool
}

// Managed controls whether the hydrated graph is registered with the unit of
// work. Unmanaged entities are usable but never produce change sets. Defaults
// to true.
func Managed(managed bool) CreateOption {
	return func(opts *createOptions) { opts.managed = managed }
}

// Persist controls whether new entities (without a primary key) are scheduled
// for insertion. Defaults to Options.PersistOnCreate.
func Persist(persist bool) CreateOption {
	return func(opts *createOptions) { opts.persist = &persist }
}

type hydrated struct {
	schema EntitySchema
	entity any
}

// hydrator builds one entity graph from a plain object. Registration with the
// unit of work is deferred until the whole graph is linked, so snapshots see
// the final foreign keys.
type hydrator struct {
	uow     *UnitOfWork
	managed bool
	persist bool

	entities []hydrated
}

func (h *hydrator) hydrate(schema EntitySchema, data Data) (any, error) {
	return schema.hydrate(h, data)
}

func (h *hydrator) track(schema EntitySchema, entity any) {
	h.entities = append(h.entities, hydrated{schema: schema, entity: entity})
}

// lookup resolves a primary key to an instance, from the entities hydrated so
// far and, for managed graphs, from the identity map.
func (h *hydrator) lookup(schema EntitySchema, id int64) (any, bool) {
	if id == 0 {
		return nil, false
	}

	for _, e := range h.entities {
		if e.schema == schema && schema.idOf(e.entity) == id {
			return e.entity, true
		}
	}

	if !h.managed {
		return nil, false
	}

	return h.uow.lookup(entityKey{table: schema.TableName(), id: id})
}

func (h *hydrator) finish() {
	if !h.managed {
		return
	}

	for _, e := range h.entities {
		if e.schema.idOf(e.entity) != 0 {
			h.uow.register(e.schema, e.entity)
			continue
		}
		if h.persist {
			h.uow.persist(e.schema, e.entity)
		}
	}
}
