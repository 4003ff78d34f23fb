package store

// overlay stages writes on top of a read function until commit. Backends
// without native multi-key transactions use it to keep Update all-or-nothing.
type overlay struct {
	hooks
	read     func(tier Tier, key Key) ([]byte, bool, error)
	writes   map[Tier]map[Key][]byte
	readOnly bool
}

func newOverlay(read func(Tier, Key) ([]byte, bool, error), readOnly bool) *overlay {
	return &overlay{
		read:     read,
		writes:   make(map[Tier]map[Key][]byte),
		readOnly: readOnly,
	}
}

func (o *overlay) Bucket(tier Tier) Bucket {
	return overlayBucket{o: o, tier: tier}
}

// each calls fn for every staged write.
func (o *overlay) each(fn func(tier Tier, key Key, value []byte) error) error {
	for tier, kv := range o.writes {
		for k, v := range kv {
			if err := fn(tier, k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *overlay) dirty() bool {
	return len(o.writes) > 0
}

type overlayBucket struct {
	o    *overlay
	tier Tier
}

func (b overlayBucket) Has(key Key) (bool, error) {
	_, ok, err := b.Get(key)
	return ok, err
}

func (b overlayBucket) Get(key Key) ([]byte, bool, error) {
	if !validTier(b.tier) {
		return nil, false, ErrUnknownTier
	}
	if v, ok := b.o.writes[b.tier][key]; ok {
		return clone(v), true, nil
	}
	return b.o.read(b.tier, key)
}

func (b overlayBucket) Set(key Key, value []byte) error {
	if !validTier(b.tier) {
		return ErrUnknownTier
	}
	if b.o.readOnly {
		return ErrReadOnly
	}
	kv := b.o.writes[b.tier]
	if kv == nil {
		kv = make(map[Key][]byte)
		b.o.writes[b.tier] = kv
	}
	kv[key] = clone(value)
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
