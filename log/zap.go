package log

import "go.uber.org/zap"

// ShortString is implemented by identifiers that have a compact form for logs.
type ShortString interface {
	ShortString() string
}

type shortStringer struct {
	ShortString
}

func (s shortStringer) String() string {
	return s.ShortString.ShortString()
}

// ZShortStringer logs the short form of an identifier.
func ZShortStringer(name string, val ShortString) zap.Field {
	return zap.Stringer(name, shortStringer{val})
}
