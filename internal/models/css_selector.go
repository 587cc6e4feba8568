package models

import "github.com/andybalholm/cascadia"

// validateCSSSelector compiles a selector without needing a document, using
// the same cascadia engine goquery's Find uses under the hood.
func validateCSSSelector(selector string) error {
	_, err := cascadia.Compile(selector)
	return err
}
