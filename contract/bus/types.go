package bus

import "reflect"

// TypeID returns the identifier used to register and resolve values of type T:
// the import path and name of T with pointers stripped, e.g.
// "example.com/billing/handlers.Mail". Unnamed types use their literal form.
func TypeID[T any]() string {
	t := reflectType[T]()
	if t.Name() == "" || t.PkgPath() == "" {
		return t.String()
	}

	return t.PkgPath() + "." + t.Name()
}

func reflectType[T any]() reflect.Type {
	t := reflect.TypeFor[T]()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	return t
}

func typeName(v any) string {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	return shortName(t)
}

func shortName(t reflect.Type) string {
	name := t.Name()
	if name == "" { // unnamed (e.g., map/struct literal)
		name = t.String()
	}

	return name
}
