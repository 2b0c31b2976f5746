// Package protection fornece o adapter HTTP (net/http) do relay da taxa de proteção.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos (requests, resultado, erros, travas, estatística)
//   - application: casos de uso (política de preço, atualização serializada) sem net/http
//   - infra: implementações concretas (travas por variante, cliente da API admin, stores)
//   - protection (este pacote): handler, middlewares e tradução de erros para status
//
// Fluxo de POST /update-protection:
//
//   1) Valida o corpo e monta ResetRequest ou CalculateRequest
//   2) application.Policy calcula o preço (ou aceita o preço de reset)
//   3) SerializedUpdater trava a variante e chama a API admin
//   4) Libera a trava, registra o evento e responde {success, variant_id, new_price, note}
//
// Variáveis de ambiente do binário (cmd/relay) controlam a política de preço, o
// acesso à API admin, o rate limit e os stores de estatística.
package protection
