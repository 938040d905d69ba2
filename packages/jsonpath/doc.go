// Package jsonpath holds a typed JSON value and the field locators used by
// body assertions.
//
// Documents are parsed with gjson into an explicit variant (null, boolean,
// number, string, array, object). Paths use dot and bracket notation:
//
//	token
//	data.email
//	data.first_name[0]
//	[2].id
//
// Resolution never panics; a path that does not exist in the document
// reports ok=false.
package jsonpath
