// internal/mailer/advertisement.go
package mailer

import (
	"fmt"
	"strings"

	"github.com/craftsquare/campaign-engine/internal/model"
)

const adSubjectTemplate = `New on Craftsquare: {title}`

const adBodyTemplate = `<html>
<body style="font-family: sans-serif; color: #333;">
  <h2>{title}</h2>
  <img src="{image_url}" alt="{title}" style="max-width: 480px;" />
  <p>{description}</p>
  <p style="font-size: 1.2em;"><strong>{price}</strong></p>
  <p><a href="{product_url}">View it on Craftsquare</a></p>
</body>
</html>`

// RenderAdvertisement builds the subject and HTML body for one product
// advertisement. The same rendering is used for campaign sends and for the
// admin test-send.
func RenderAdvertisement(p *model.Product, baseURL string) (subject, html string) {
	data := map[string]string{
		"title":       p.Title,
		"description": p.Description,
		"price":       FormatPrice(p.PriceCents),
		"image_url":   p.ImageURL,
		"product_url": strings.TrimRight(baseURL, "/") + "/products/" + p.Slug,
	}
	return RenderTemplate(adSubjectTemplate, data), RenderTemplate(adBodyTemplate, data)
}

func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		if v == "" {
			v = "N/A"
		}
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}

func FormatPrice(cents int) string {
	return fmt.Sprintf("$%.2f", float64(cents)/100)
}
