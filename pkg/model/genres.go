package model

import (
	"slices"
	"sort"
)

// genres is the accepted track_genre vocabulary, in the order the service
// has always published it
var genres = []string{
	"acoustic", "afrobeat", "alt-rock", "alternative", "ambient", "anime", "black-metal",
	"bluegrass", "blues", "brazil", "breakbeat", "british", "cantopop", "chicago-house", "children",
	"chill", "classical", "club", "comedy", "country", "dance", "dancehall", "death-metal", "deep-house",
	"detroit-techno", "disco", "disney", "drum-and-bass", "dub", "dubstep", "edm", "electro", "electronic",
	"emo", "folk", "forro", "french", "funk", "garage", "german", "gospel", "goth", "grindcore", "groove",
	"grunge", "guitar", "happy", "hard-rock", "hardcore", "hardstyle", "heavy-metal", "hip-hop", "honky-tonk",
	"house", "idm", "indian", "indie-pop", "indie", "industrial", "iranian", "j-dance", "j-idol", "j-pop",
	"j-rock", "jazz", "k-pop", "kids", "latin", "latino", "malay", "mandopop", "metal", "metalcore",
	"minimal-techno", "mpb", "new-age", "opera", "pagode", "party", "piano", "pop-film", "pop",
	"power-pop", "progressive-house", "psych-rock", "punk-rock", "punk", "r-n-b", "reggae", "reggaeton",
	"rock-n-roll", "rock", "rockabilly", "romance", "sad", "salsa", "samba", "sertanejo", "show-tunes",
	"singer-songwriter", "ska", "sleep", "songwriter", "soul", "spanish", "study", "swedish", "synth-pop",
	"tango", "techno", "trance", "trip-hop", "turkish", "world-music",
}

var genreSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(genres))
	for _, g := range genres {
		m[g] = struct{}{}
	}
	return m
}()

// Genres returns a copy of the vocabulary in publication order
func Genres() []string {
	return slices.Clone(genres)
}

// SortedGenres returns the vocabulary sorted lexicographically, which is the
// class order of the default label encoder
func SortedGenres() []string {
	out := slices.Clone(genres)
	sort.Strings(out)
	return out
}

// IsKnownGenre reports whether genre belongs to the vocabulary
func IsKnownGenre(genre string) bool {
	_, ok := genreSet[genre]
	return ok
}
