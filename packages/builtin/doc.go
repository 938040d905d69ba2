// Package builtin provides the functions available inside {{...}}
// placeholders of test cases.
//
// Available functions:
//   - uuid(): Random UUID v4
//   - now(): Current UTC time in RFC 3339
//   - date(layout): Current UTC date, Go layout, default 2006-01-02
//   - timestamp(), timestampMs(): Unix time in seconds or milliseconds
//   - random(min, max): Random integer in the closed range
//   - randomString(length): Random alphanumeric string
//   - randomEmail(domain): Random address, optionally at the given domain
//   - base64(value): Base64 encode a string
//
// A call looks like {{randomEmail("reqres.in")}} in a path, header or body.
package builtin
