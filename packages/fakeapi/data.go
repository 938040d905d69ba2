package fakeapi

import (
	"fmt"
	"strings"
)

type user struct {
	ID        int    `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Avatar    string `json:"avatar"`
}

type resource struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Year         int    `json:"year"`
	Color        string `json:"color"`
	PantoneValue string `json:"pantone_value"`
}

type support struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

type page[T any] struct {
	Page       int     `json:"page"`
	PerPage    int     `json:"per_page"`
	Total      int     `json:"total"`
	TotalPages int     `json:"total_pages"`
	Data       []T     `json:"data"`
	Support    support `json:"support"`
}

type single[T any] struct {
	Data    T       `json:"data"`
	Support support `json:"support"`
}

const (
	perPage = 6
	// Token is returned by successful login and register calls.
	Token = "QpwL5tke4Pnpja7X4"
)

var defaultSupport = support{
	URL:  "https://contentcaddy.io?utm_source=reqres&utm_medium=json&utm_campaign=referral",
	Text: "Tired of writing endless social media content? Let Content Caddy generate it for you.",
}

func newUser(id int, first, last string) user {
	return user{
		ID:        id,
		Email:     fmt.Sprintf("%s.%s@reqres.in", strings.ToLower(first), strings.ToLower(last)),
		FirstName: first,
		LastName:  last,
		Avatar:    fmt.Sprintf("https://reqres.in/img/faces/%d-image.jpg", id),
	}
}

var users = []user{
	newUser(1, "George", "Bluth"),
	newUser(2, "Janet", "Weaver"),
	newUser(3, "Emma", "Wong"),
	newUser(4, "Eve", "Holt"),
	newUser(5, "Charles", "Morris"),
	newUser(6, "Tracey", "Ramos"),
	newUser(7, "Michael", "Lawson"),
	newUser(8, "Lindsay", "Ferguson"),
	newUser(9, "Tobias", "Funke"),
	newUser(10, "Byron", "Fields"),
	newUser(11, "George", "Edwards"),
	newUser(12, "Rachel", "Howell"),
}

var resources = []resource{
	{1, "cerulean", 2000, "#98B2D1", "15-4020"},
	{2, "fuchsia rose", 2001, "#C74375", "17-2031"},
	{3, "true red", 2002, "#BF1932", "19-1664"},
	{4, "aqua sky", 2003, "#7BC4C4", "14-4811"},
	{5, "tigerlily", 2004, "#E2583E", "17-1456"},
	{6, "blue turquoise", 2005, "#53B0AE", "15-5217"},
	{7, "sand dollar", 2006, "#DECDBE", "13-1106"},
	{8, "chili pepper", 2007, "#9B1B30", "19-1557"},
	{9, "blue iris", 2008, "#5A5B9F", "18-3943"},
	{10, "mimosa", 2009, "#F0C05A", "14-0848"},
	{11, "turquoise", 2010, "#45B5AA", "15-5519"},
	{12, "honeysuckle", 2011, "#D94F70", "18-2120"},
}

// paginate returns page p (1-based) of items. Pages past the end are empty.
func paginate[T any](items []T, p int) page[T] {
	if p < 1 {
		p = 1
	}
	start := (p - 1) * perPage
	end := start + perPage
	if start > len(items) {
		start = len(items)
	}
	if end > len(items) {
		end = len(items)
	}
	data := make([]T, end-start)
	copy(data, items[start:end])
	return page[T]{
		Page:       p,
		PerPage:    perPage,
		Total:      len(items),
		TotalPages: (len(items) + perPage - 1) / perPage,
		Data:       data,
		Support:    defaultSupport,
	}
}

func userByEmail(email string) (user, bool) {
	for _, u := range users {
		if u.Email == email {
			return u, true
		}
	}
	return user{}, false
}
