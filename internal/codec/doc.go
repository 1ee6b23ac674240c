// Package codec implements the order-preserving binary encodings used for
// entity ids, property and link keys, and property values.
//
// Every encoding compares with bytes.Compare in the same order as the
// decoded values. Decoders never panic on malformed input; they return an
// error matching ErrMalformed.
package codec
