package pubmed

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"
)

// EFetch XML shapes, trimmed to the fields the assistant uses.

type articleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
	Books    []bookDocument  `xml:"PubmedBookArticle>BookDocument"`
}

type pubmedArticle struct {
	Citation struct {
		Article struct {
			Title    string       `xml:"ArticleTitle"`
			Abstract abstractNode `xml:"Abstract"`
			Journal  struct {
				Title string `xml:"Title"`
				Issue struct {
					PubDate struct {
						Year        string `xml:"Year"`
						MedlineDate string `xml:"MedlineDate"`
					} `xml:"PubDate"`
				} `xml:"JournalIssue"`
			} `xml:"Journal"`
			Authors []struct {
				LastName string `xml:"LastName"`
				ForeName string `xml:"ForeName"`
				Initials string `xml:"Initials"`
			} `xml:"AuthorList>Author"`
		} `xml:"Article"`
	} `xml:"MedlineCitation"`
	IDs []articleID `xml:"PubmedData>ArticleIdList>ArticleId"`
}

type bookDocument struct {
	Title     string       `xml:"ArticleTitle"`
	BookTitle string       `xml:"Book>BookTitle"`
	Abstract  abstractNode `xml:"Abstract"`
}

type abstractNode struct {
	Sections []struct {
		Label string `xml:"Label,attr"`
		Text  string `xml:",chardata"`
	} `xml:"AbstractText"`
}

type articleID struct {
	Type  string `xml:"IdType,attr"`
	Value string `xml:",chardata"`
}

// parseArticle normalizes one EFetch response. Book chapters, errata
// and editorials lack the usual Article element; they degrade to a
// minimal record instead of failing.
func parseArticle(body []byte) (Article, error) {
	var set articleSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return Article{}, fmt.Errorf("parse efetch xml: %w", err)
	}

	if len(set.Articles) == 0 {
		if len(set.Books) > 0 {
			book := set.Books[0]
			title := book.Title
			if title == "" {
				title = book.BookTitle
			}
			if title == "" {
				title = "No Title"
			}
			return Article{
				Title:    strings.TrimSpace(title),
				Abstract: renderAbstract(book.Abstract),
				Journal:  "Book Chapter",
				Year:     "Unknown",
			}, nil
		}
		return Article{Title: "No Title", Abstract: "No Abstract", Journal: "Unknown", Year: "Unknown"}, nil
	}

	src := set.Articles[0]
	art := Article{
		Title:    strings.TrimSpace(src.Citation.Article.Title),
		Abstract: renderAbstract(src.Citation.Article.Abstract),
		Journal:  src.Citation.Article.Journal.Title,
		Year:     src.Citation.Article.Journal.Issue.PubDate.Year,
	}
	if art.Title == "" {
		art.Title = "No Title"
	}
	if art.Journal == "" {
		art.Journal = "Unknown"
	}
	if art.Year == "" {
		art.Year = src.Citation.Article.Journal.Issue.PubDate.MedlineDate
	}
	if art.Year == "" {
		art.Year = "Unknown"
	}
	for _, au := range src.Citation.Article.Authors {
		fore := au.ForeName
		if fore == "" {
			fore = au.Initials
		}
		name := strings.TrimSpace(au.LastName + " " + fore)
		if name != "" {
			art.Authors = append(art.Authors, name)
		}
	}
	for _, id := range src.IDs {
		switch id.Type {
		case "doi":
			art.DOI = strings.TrimSpace(id.Value)
		case "pmc":
			art.PMCID = strings.TrimPrefix(strings.TrimSpace(id.Value), "PMC")
		}
	}
	return art, nil
}

func renderAbstract(abs abstractNode) string {
	if len(abs.Sections) == 0 {
		return "No Abstract"
	}
	parts := make([]string, 0, len(abs.Sections))
	for _, sec := range abs.Sections {
		body := strings.TrimSpace(sec.Text)
		if sec.Label != "" {
			parts = append(parts, sec.Label+": "+body)
		} else {
			parts = append(parts, body)
		}
	}
	out := strings.TrimSpace(strings.Join(parts, "\n"))
	if out == "" {
		return "No Abstract"
	}
	return out
}

func jsonUnmarshal(body []byte, out interface{}) error {
	return json.Unmarshal(body, out)
}
