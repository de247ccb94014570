// Package camara knows how to read the Chamber of Deputies image
// archive: which years it covers, which session dates a year has, and
// where each session's PDF lives.
//
// The archive's markup is an external contract that can change without
// notice, so all of the brittle parsing (anchor conventions, URL
// patterns, date tokens) is isolated here. The scheduler consumes this
// package through small interfaces and never sees HTML.
//
// # Page structure
//
//   - Root index: pesquisa_diario_basica.asp, mentions available years
//   - Year calendar: pesquisa_diario_basica.asp?ano=YYYY, with
//     a.WeekDay anchors carrying Datain=DD/MM/YYYY
//   - Session page: dc_20b.asp?..., embedding a PDF reference on the
//     imagem.camara.gov.br host
//
// Discovery methods fail soft: on any fetch or parse error they return
// an empty result and log, so an unreachable page degrades to "nothing
// to do" instead of aborting a long run.
package camara
