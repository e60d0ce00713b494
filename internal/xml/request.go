package xml

import (
	"github.com/beevik/etree"
)

// Common XML tag names used in CalDAV
const (
	TagPropfind             = "propfind"
	TagProp                 = "prop"
	TagMultistatus          = "multistatus"
	TagResponse             = "response"
	TagHref                 = "href"
	TagPropstat             = "propstat"
	TagStatus               = "status"
	TagDisplayName          = "displayname"
	TagCurrentUserPrincipal = "current-user-principal"
	TagCalendarData         = "calendar-data"
	TagGetContentType       = "getcontenttype"
	TagSyncCollection       = "sync-collection"
	TagSyncToken            = "sync-token"
	TagSyncLevel            = "sync-level"
	TagCalendarMultiget     = "calendar-multiget"
	TagCalendarQuery        = "calendar-query"
	TagFilter               = "filter"
	TagCompFilter           = "comp-filter"
)

// CompVCalendar is the component name every calendar filter starts from
const CompVCalendar = "VCALENDAR"

// PropfindRequest represents a PROPFIND request for DAV: properties
type PropfindRequest struct {
	Prop []string
}

// ToXML converts a PropfindRequest to an XML document
func (r *PropfindRequest) ToXML() *etree.Document {
	doc := etree.NewDocument()
	root := doc.CreateElement(dav(TagPropfind))
	AddNamespaces(doc, DAV)

	prop := root.CreateElement(dav(TagProp))
	for _, name := range r.Prop {
		prop.CreateElement(dav(name))
	}
	return doc
}

// SyncCollectionRequest represents a sync-collection REPORT request
type SyncCollectionRequest struct {
	SyncToken string
	SyncLevel string
	Prop      []string
}

// ToXML converts a SyncCollectionRequest to an XML document. An empty
// SyncToken asks for the full member list.
func (r *SyncCollectionRequest) ToXML() *etree.Document {
	doc := etree.NewDocument()
	root := doc.CreateElement(dav(TagSyncCollection))
	AddNamespaces(doc, DAV)

	token := root.CreateElement(dav(TagSyncToken))
	if r.SyncToken != "" {
		token.SetText(r.SyncToken)
	}

	if r.SyncLevel != "" {
		level := root.CreateElement(dav(TagSyncLevel))
		level.SetText(r.SyncLevel)
	}

	if len(r.Prop) > 0 {
		prop := root.CreateElement(dav(TagProp))
		for _, name := range r.Prop {
			prop.CreateElement(dav(name))
		}
	}
	return doc
}

// CalendarMultigetRequest represents a calendar-multiget REPORT request
type CalendarMultigetRequest struct {
	Hrefs []string
}

// ToXML converts a CalendarMultigetRequest to an XML document
func (r *CalendarMultigetRequest) ToXML() *etree.Document {
	doc := etree.NewDocument()
	root := doc.CreateElement(caldav(TagCalendarMultiget))
	AddNamespaces(doc, DAV, CalDAV)

	prop := root.CreateElement(dav(TagProp))
	prop.CreateElement(caldav(TagCalendarData))
	addVCalendarFilter(root)

	for _, href := range r.Hrefs {
		h := root.CreateElement(dav(TagHref))
		h.SetText(href)
	}
	return doc
}

// CalendarQueryRequest represents a calendar-query REPORT request that asks
// for the calendar data of every VCALENDAR under the target
type CalendarQueryRequest struct{}

// ToXML converts a CalendarQueryRequest to an XML document
func (r *CalendarQueryRequest) ToXML() *etree.Document {
	doc := etree.NewDocument()
	root := doc.CreateElement(caldav(TagCalendarQuery))
	AddNamespaces(doc, DAV, CalDAV)

	prop := root.CreateElement(dav(TagProp))
	prop.CreateElement(caldav(TagCalendarData))
	addVCalendarFilter(root)
	return doc
}

func addVCalendarFilter(root *etree.Element) {
	filter := root.CreateElement(caldav(TagFilter))
	comp := filter.CreateElement(caldav(TagCompFilter))
	comp.CreateAttr("name", CompVCalendar)
}

func dav(tag string) string    { return PrefixDAV + ":" + tag }
func caldav(tag string) string { return PrefixCalDAV + ":" + tag }

// CurrentUserPrincipalRequest builds the PROPFIND body asking for the
// authenticated principal
func CurrentUserPrincipalRequest() *etree.Document {
	return (&PropfindRequest{Prop: []string{TagCurrentUserPrincipal}}).ToXML()
}

// DisplayNameRequest builds the PROPFIND body asking for display names
func DisplayNameRequest() *etree.Document {
	return (&PropfindRequest{Prop: []string{TagDisplayName}}).ToXML()
}

// MemberListRequest builds the sync-collection body used to enumerate every
// member of a collection
func MemberListRequest() *etree.Document {
	return (&SyncCollectionRequest{
		SyncLevel: "1",
		Prop:      []string{TagGetContentType},
	}).ToXML()
}
