// Package application contém os casos de uso da taxa de proteção.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Policy.Price(req) devolve o preço e a nota; SerializedUpdater.Update
// serializa a escrita por variante; ProtectionService.Apply junta os dois.
package application
