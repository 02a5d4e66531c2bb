// Package textutil turns file names and catalog metadata into comparable
// text: artist/title guesses, cleaned search terms, and similarity scores.
//
// Comparison always goes through Fold, which transliterates to ASCII,
// lowercases, and collapses punctuation, so "Beyoncé - Déjà Vu" and
// "beyonce deja vu" compare equal.
package textutil
