// Package env resolves {{...}} placeholders in test cases.
//
// It provides functionality for:
//   - Variable interpolation using {{variable}} syntax
//   - OS environment lookups using {{$NAME}}
//   - Built-in function evaluation ({{uuid()}}, {{randomEmail()}}, ...)
//   - Loading .env files as variables
package env
