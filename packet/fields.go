package packet

// Header field names understood by the server.
const (
	FieldLength    = "Length"
	FieldLogin     = "Login"
	FieldPassword  = "Password"
	FieldEncoding  = "Encoding"
	FieldStatus    = "Status"
	FieldReason    = "Reason"
	FieldErrorCode = "ErrorCode"
)

// Values of the Status field.
const (
	StatusSuccess = "Success"
	StatusError   = "Error"
)

// Fields is an insertion-ordered set of header fields. Setting an
// existing key replaces its value but keeps its original position.
type Fields struct {
	keys   []string
	values map[string]string
}

// NewFields builds Fields from alternating key, value arguments.
func NewFields(kv ...string) Fields {
	var f Fields
	for i := 0; i+1 < len(kv); i += 2 {
		f.Set(kv[i], kv[i+1])
	}
	return f
}

// Set adds or replaces a field.
func (f *Fields) Set(key, value string) {
	if f.values == nil {
		f.values = make(map[string]string)
	}
	if _, exists := f.values[key]; !exists {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
}

// Get returns the field value, or "" when the field is absent.
func (f Fields) Get(key string) string {
	return f.values[key]
}

// Lookup returns the field value and whether it was present.
func (f Fields) Lookup(key string) (string, bool) {
	v, ok := f.values[key]
	return v, ok
}

// Keys returns the field names in insertion order.
func (f Fields) Keys() []string {
	return append([]string(nil), f.keys...)
}

// Len returns the number of fields.
func (f Fields) Len() int {
	return len(f.keys)
}
