package topics

import (
	"io"
	"os"
	"strings"

	"golang.org/x/net/html"

	"github.com/cognicore/clair/pkg/clair"
	"github.com/cognicore/clair/pkg/clair/internalerr"
	"github.com/cognicore/clair/pkg/clair/pipeline"
)

// trecTopicReader parses the classic TREC topic SGML:
//
//	<top>
//	<num> Number: 301
//	<title> topic title
//	<desc> Description:
//	one or more lines
//	<narr> Narrative:
//	one or more lines
//	</top>
//
// The format predates XML and leaves most tags unclosed, so it is fed
// through a tolerant html tokenizer rather than an XML parser.
type trecTopicReader struct {
	topics []clair.Topic
	pos    int
}

func newTrecTopicReader(path, lang string) (*trecTopicReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, internalerr.Wrap(internalerr.KindConfig, err, "opening input file")
	}
	defer file.Close()
	topics, err := parseTrecTopics(file, lang, path)
	if err != nil {
		return nil, err
	}
	return &trecTopicReader{topics: topics}, nil
}

func (r *trecTopicReader) Next() (pipeline.Item, error) {
	if r.pos >= len(r.topics) {
		return nil, io.EOF
	}
	topic := r.topics[r.pos]
	r.pos++
	return topic, nil
}

func (r *trecTopicReader) Close() error { return nil }

func parseTrecTopics(reader io.Reader, lang, path string) ([]clair.Topic, error) {
	z := html.NewTokenizer(reader)
	var topics []clair.Topic
	var current *clair.Topic
	var num string
	var field *string
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return topics, nil
			}
			return nil, internalerr.Parse("bad topic markup in %s: %v", path, z.Err())
		case html.StartTagToken:
			// Tags like title are raw text elements in html; the topic
			// format closes none of them, so raw text mode must be off.
			z.NextIsNotRawText()
			name, _ := z.TagName()
			if current == nil {
				if string(name) == "top" {
					current = &clair.Topic{Lang: lang}
					num = ""
					field = nil
				}
				continue
			}
			switch string(name) {
			case "num":
				field = &num
			case "title":
				field = &current.Title
			case "desc":
				field = &current.Desc
			case "narr":
				field = &current.Narrative
			default:
				field = nil
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if string(name) != "top" || current == nil {
				continue
			}
			current.ID = stripLabel(num, "Number:")
			current.Title = stripLabel(current.Title, "Topic:")
			current.Desc = stripLabel(current.Desc, "Description:")
			current.Narrative = stripLabel(current.Narrative, "Narrative:")
			if current.ID == "" || current.Title == "" {
				return nil, internalerr.Parse("topic in %s needs a number and a title", path)
			}
			topics = append(topics, *current)
			current = nil
		case html.TextToken:
			if current != nil && field != nil {
				*field += string(z.Text())
			}
		}
	}
}

// stripLabel drops the field label some topic files carry and collapses
// the remaining text onto one line.
func stripLabel(s, label string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, label) {
		s = strings.TrimSpace(s[len(label):])
	}
	return strings.Join(strings.Fields(s), " ")
}
