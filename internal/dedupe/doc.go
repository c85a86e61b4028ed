// Package dedupe remembers recently used request keys so a retried request
// resolves to the result of the first one instead of repeating its effect.
package dedupe
