// Package formats provides decoders for M2 models, their skin files and
// BLP2 compressed textures.
//
// All decoders work on an immutable byte buffer through a Cursor and check
// every read against the buffer length. Errors wrap ErrFormat or
// ErrOutOfBounds and name the chunk that failed.
package formats
