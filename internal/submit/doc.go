// Package submit delivers queries to the krishi-bandhu backend over
// multipart HTTP. Text submissions are serialized process-wide and retried
// once on transport failure; voice and image submissions go out exactly
// once. Replies come back already normalized.
package submit
