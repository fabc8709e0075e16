package external

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/symptom-assessment-server/internal/domain"
)

const pubMedArticleURL = "https://pubmed.ncbi.nlm.nih.gov/%s/"

// PubMedClient searches NCBI PubMed via E-utilities
type PubMedClient struct {
	baseURL    string
	apiKey     string
	email      string // Required by NCBI
	tool       string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

// PubMedConfig contains configuration for PubMed client
type PubMedConfig struct {
	BaseURL   string
	APIKey    string
	Email     string
	Tool      string
	Timeout   time.Duration
	RateLimit int
}

// NewPubMedClient creates a new PubMed API client
func NewPubMedClient(config PubMedConfig, logger *logrus.Logger) *PubMedClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/"
	}
	if !strings.HasSuffix(config.BaseURL, "/") {
		config.BaseURL += "/"
	}
	if config.RateLimit == 0 {
		config.RateLimit = 3 // NCBI allows 3 rps without a key, 10 with one
		if config.APIKey != "" {
			config.RateLimit = 10
		}
	}
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &PubMedClient{
		baseURL:    config.BaseURL,
		apiKey:     config.APIKey,
		email:      config.Email,
		tool:       config.Tool,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		logger:     logger,
	}
}

// Name implements domain.EvidenceSource
func (p *PubMedClient) Name() domain.EvidenceSourceName {
	return domain.SourcePubMed
}

// Search finds up to maxResults articles, relevance ordered. Transport failures
// in either phase yield a single SourceError record.
func (p *PubMedClient) Search(ctx context.Context, query domain.RefinedQuery, maxResults int) []domain.EvidenceRecord {
	term := query.LiteratureQuery()
	if maxResults <= 0 {
		maxResults = 3
	}

	ids, err := p.searchIDs(ctx, term, maxResults)
	if err != nil {
		return []domain.EvidenceRecord{domain.SourceError{Source: domain.SourcePubMed, Query: term, Reason: err.Error()}}
	}
	if len(ids) == 0 {
		return []domain.EvidenceRecord{domain.NoResults{Source: domain.SourcePubMed, Query: term}}
	}

	articles, err := p.fetchArticles(ctx, ids)
	if err != nil {
		return []domain.EvidenceRecord{domain.SourceError{Source: domain.SourcePubMed, Query: term, Reason: err.Error()}}
	}
	if len(articles) == 0 {
		return []domain.EvidenceRecord{domain.NoResults{Source: domain.SourcePubMed, Query: term}}
	}

	records := make([]domain.EvidenceRecord, len(articles))
	for i, a := range articles {
		records[i] = a
	}
	return records
}

type eSearchResponse struct {
	Result struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

// searchIDs runs esearch and returns PMIDs
func (p *PubMedClient) searchIDs(ctx context.Context, term string, maxResults int) ([]string, error) {
	params := p.commonParams()
	params.Set("term", term)
	params.Set("retmax", strconv.Itoa(maxResults))
	params.Set("retmode", "json")
	params.Set("sort", "relevance")

	body, err := p.get(ctx, "esearch.fcgi", params)
	if err != nil {
		return nil, fmt.Errorf("PubMed search failed: %w", err)
	}

	var resp eSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	ids := resp.Result.IDList
	if len(ids) > maxResults {
		ids = ids[:maxResults]
	}
	return ids, nil
}

// fetchArticles batch-fetches full records for ids in one efetch call
func (p *PubMedClient) fetchArticles(ctx context.Context, ids []string) ([]domain.LiteratureArticle, error) {
	params := p.commonParams()
	params.Set("id", strings.Join(ids, ","))
	params.Set("retmode", "xml")

	body, err := p.get(ctx, "efetch.fcgi", params)
	if err != nil {
		return nil, fmt.Errorf("PubMed fetch failed: %w", err)
	}

	articles, skipped, err := parseArticleSet(strings.NewReader(string(body)))
	if err != nil && len(articles) == 0 {
		return nil, fmt.Errorf("failed to parse fetch response: %w", err)
	}
	if err != nil || skipped > 0 {
		p.logger.WithFields(logrus.Fields{
			"parsed":  len(articles),
			"skipped": skipped,
		}).WithError(err).Warn("Some PubMed articles could not be parsed")
	}
	return articles, nil
}

func (p *PubMedClient) commonParams() url.Values {
	params := url.Values{"db": {"pubmed"}}
	if p.tool != "" {
		params.Set("tool", p.tool)
	}
	if p.email != "" {
		params.Set("email", p.email)
	}
	if p.apiKey != "" {
		params.Set("api_key", p.apiKey)
	}
	return params
}

func (p *PubMedClient) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	fullURL := fmt.Sprintf("%s%s?%s", p.baseURL, endpoint, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", endpoint, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// pubmedArticle is one PubmedArticle element of an efetch response
type pubmedArticle struct {
	MedlineCitation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			ArticleTitle markupText `xml:"ArticleTitle"`
			Abstract     struct {
				AbstractText []abstractSegment `xml:"AbstractText"`
			} `xml:"Abstract"`
			AuthorList struct {
				Authors []struct {
					LastName       string `xml:"LastName"`
					ForeName       string `xml:"ForeName"`
					Initials       string `xml:"Initials"`
					CollectiveName string `xml:"CollectiveName"`
				} `xml:"Author"`
			} `xml:"AuthorList"`
			Journal struct {
				Title        string `xml:"Title"`
				JournalIssue struct {
					PubDate struct {
						Year        string `xml:"Year"`
						Month       string `xml:"Month"`
						Day         string `xml:"Day"`
						MedlineDate string `xml:"MedlineDate"`
					} `xml:"PubDate"`
				} `xml:"JournalIssue"`
			} `xml:"Journal"`
		} `xml:"Article"`
		KeywordList []struct {
			Keywords []markupText `xml:"Keyword"`
		} `xml:"KeywordList"`
		MeshHeadingList struct {
			MeshHeadings []struct {
				DescriptorName string `xml:"DescriptorName"`
			} `xml:"MeshHeading"`
		} `xml:"MeshHeadingList"`
	} `xml:"MedlineCitation"`
}

// markupText collects all character data of an element, including text
// nested in inline markup such as <i> or <sup>.
type markupText string

func (m *markupText) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	text, err := collectText(d)
	*m = markupText(text)
	return err
}

// abstractSegment is an AbstractText element with its optional Label
type abstractSegment struct {
	Label string
	Text  string
}

func (a *abstractSegment) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, attr := range start.Attr {
		if attr.Name.Local == "Label" {
			a.Label = attr.Value
		}
	}
	text, err := collectText(d)
	a.Text = text
	return err
}

func collectText(d *xml.Decoder) (string, error) {
	var b strings.Builder
	depth := 0
	for {
		tok, err := d.Token()
		if err != nil {
			return b.String(), err
		}
		switch t := tok.(type) {
		case xml.CharData:
			b.Write(t)
		case xml.StartElement:
			depth++
		case xml.EndElement:
			if depth == 0 {
				return strings.TrimSpace(b.String()), nil
			}
			depth--
		}
	}
}

// parseArticleSet decodes PubmedArticle elements one at a time so a malformed
// article is skipped instead of failing the batch. A document-level syntax
// error stops decoding and is returned with the articles parsed so far.
func parseArticleSet(r io.Reader) ([]domain.LiteratureArticle, int, error) {
	decoder := xml.NewDecoder(r)
	var (
		articles []domain.LiteratureArticle
		skipped  int
	)
	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			return articles, skipped, nil
		}
		if err != nil {
			return articles, skipped, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "PubmedArticle" {
			continue
		}

		var raw pubmedArticle
		if err := decoder.DecodeElement(&raw, &start); err != nil {
			return articles, skipped + 1, err
		}
		article, ok := convertArticle(&raw)
		if !ok {
			skipped++
			continue
		}
		articles = append(articles, article)
	}
}

// convertArticle flattens a PubmedArticle. Articles without a PMID are rejected.
func convertArticle(raw *pubmedArticle) (domain.LiteratureArticle, bool) {
	mc := raw.MedlineCitation
	pmid := strings.TrimSpace(mc.PMID)
	if pmid == "" {
		return domain.LiteratureArticle{}, false
	}

	title := strings.TrimSpace(string(mc.Article.ArticleTitle))
	if title == "" {
		title = "No title available"
	}

	var segments []string
	for _, seg := range mc.Article.Abstract.AbstractText {
		if seg.Text == "" {
			continue
		}
		if seg.Label != "" {
			segments = append(segments, seg.Label+": "+seg.Text)
		} else {
			segments = append(segments, seg.Text)
		}
	}
	abstract := strings.Join(segments, " ")
	if abstract == "" {
		abstract = "No abstract available"
	}

	journal := strings.TrimSpace(mc.Article.Journal.Title)
	if journal == "" {
		journal = "N/A"
	}

	var authors []string
	for _, a := range mc.Article.AuthorList.Authors {
		switch {
		case a.LastName != "" && a.ForeName != "":
			authors = append(authors, a.LastName+" "+a.ForeName)
		case a.LastName != "" && a.Initials != "":
			authors = append(authors, a.LastName+" "+a.Initials)
		case a.LastName != "":
			authors = append(authors, a.LastName)
		case a.CollectiveName != "":
			authors = append(authors, a.CollectiveName)
		}
	}
	authorList := strings.Join(authors, ", ")
	if authorList == "" {
		authorList = "No authors listed"
	}

	keywords := []string{}
	for _, list := range mc.KeywordList {
		for _, k := range list.Keywords {
			if s := strings.TrimSpace(string(k)); s != "" {
				keywords = append(keywords, s)
			}
		}
	}
	mesh := []string{}
	for _, h := range mc.MeshHeadingList.MeshHeadings {
		if s := strings.TrimSpace(h.DescriptorName); s != "" {
			mesh = append(mesh, s)
		}
	}

	return domain.LiteratureArticle{
		PMID:      pmid,
		Title:     title,
		Abstract:  abstract,
		Journal:   journal,
		Date:      publicationDate(raw),
		Authors:   authorList,
		Keywords:  keywords,
		MeshTerms: mesh,
		URL:       fmt.Sprintf(pubMedArticleURL, pmid),
	}, true
}

// publicationDate renders "Day Month Year" from structured parts, falling back
// to the free-text MedlineDate.
func publicationDate(raw *pubmedArticle) string {
	d := raw.MedlineCitation.Article.Journal.JournalIssue.PubDate
	if d.Year != "" {
		parts := []string{}
		if d.Month != "" {
			if d.Day != "" {
				parts = append(parts, d.Day)
			}
			parts = append(parts, d.Month)
		}
		parts = append(parts, d.Year)
		return strings.Join(parts, " ")
	}
	if d.MedlineDate != "" {
		return d.MedlineDate
	}
	return "N/A"
}
